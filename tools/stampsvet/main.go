// Stampsvet runs the static analyzers buildstamps is linted with.
//
// Usage:
//
//	go run ./tools/stampsvet ./...
package main

import "golang.org/x/tools/go/analysis/multichecker"

func main() {
	multichecker.Main(analyzers...)
}
