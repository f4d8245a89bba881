package main

import "errors"

// Validation errors leave the document untouched. Resource and tool
// errors surface to the caller; drift is corrected silently.
var (
	ErrUnknownLayer   = errors.New("unknown layer id")
	ErrUnknownBand    = errors.New("unknown reactive source band")
	ErrNotAContainer  = errors.New("parent is not a composition or group")
	ErrCycle          = errors.New("reparent would create a cycle")
	ErrNotPermutation = errors.New("reorder must be a permutation of existing ids")
	ErrNoAudio        = errors.New("no audio loaded")
	ErrExporting      = errors.New("export in progress")
	ErrExportCancel   = errors.New("export canceled")
)
