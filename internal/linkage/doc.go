// Package linkage holds the data model shared by every record-linkage stage
// and the Linker contract the pipeline drives.
//
// A RecordID is derived from the source file and the zero-based data row, so
// output rows can always be joined back to input rows. Records are immutable
// once built; a field whose normalized value is empty is stored as absent,
// never as an empty string.
//
// The Linker interface is the only thing the orchestration core knows about
// similarity learning, blocking, and clustering. internal/linker provides the
// bundled implementation; tests substitute rule-based fakes.
package linkage
