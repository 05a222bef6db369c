// Package stamps answers "has this input changed since the last successful
// build of this output?" for an incremental build.
//
// A [Stamp] fingerprints one file. A [Storage] persists the stamp recorded for
// each (target, file) pair after a successful compile, and the build driver
// compares it with the file's current stamp before deciding to recompile:
//
//	dirty, err := stamps.IsDirty(storage, target, file)
//	...compile...
//	err = stamps.Record(storage, target, file)
//
// Two strategies implement Storage:
//
//   - [TimestampStorage] stamps a file by modification time (milliseconds)
//     and length. It is fast but machine-local: keys are absolute paths and
//     two writes inside the filesystem's timestamp granularity look
//     unchanged.
//   - [ContentStorage] stamps a file by its BLAKE3 digest and length, and
//     keys files by their relativized path (see package relativize). The
//     resulting storage can be copied to another machine with a different
//     checkout location and remain valid.
//
// [ProjectStamps] selects one strategy per build session, owns the storage
// lifecycle, and replaces a storage that fails to close, or that turns out
// to be unreadable, with an empty one.
//
// Symbolic links: stamps are computed with os.Stat semantics, so links are
// followed. Keys use the path exactly as the caller gives it; callers that
// want one record per physical file resolve links once before calling.
//
// Nothing in this package is safe for concurrent use.
package stamps
