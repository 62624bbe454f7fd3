// Package textutil provides the string similarity measures the linker's
// comparators are built from.
//
// Fingerprints are term-frequency vectors over lowercase alphanumeric tokens
// and are compared with cosine similarity. Jaro-Winkler and a Levenshtein
// ratio cover short strings where token overlap is too coarse. Every measure
// returns a value in [0,1] and treats two empty inputs as dissimilar.
package textutil
