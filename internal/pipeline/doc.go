// Package pipeline sequences a linkage run: load both sources, reuse or
// train a model, cluster, and write the merged table.
//
// A Runner holds an exclusive lock on the workspace for the duration of a
// run. When labeling ends because the judge became unavailable, the labels
// gathered so far are persisted before the run fails.
package pipeline
