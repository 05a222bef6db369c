package lostcancel

import "context"

func scan() {
	ctx, _ := context.WithCancel(context.Background()) // want "the cancel function returned by context.WithCancel should be called, not discarded, to avoid a context leak"
	_ = ctx
}

func watch() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = ctx
}
