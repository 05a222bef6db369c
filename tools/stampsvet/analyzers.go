package main

import (
	"github.com/kisielk/errcheck/errcheck"
	"go.uber.org/nilaway"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/errorsas"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unusedresult"
)

// analyzers is every check stampsvet runs.
var analyzers = []*analysis.Analyzer{
	errcheck.Analyzer,     // unchecked errors (storage Close, table writes)
	nilaway.Analyzer,      // potential nil dereferences
	copylock.Analyzer,     // copied locks (watcher, debouncer)
	errorsas.Analyzer,     // errors.As with a non-pointer target
	lostcancel.Analyzer,   // discarded context cancel functions
	printf.Analyzer,       // printf-style format mismatches
	structtag.Analyzer,    // malformed struct tags (toml, json, cbor)
	unmarshal.Analyzer,    // unmarshal into non-pointers
	unusedresult.Analyzer, // unused results of pure functions
}
