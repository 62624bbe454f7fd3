// Package linker is the bundled linkage.Linker.
//
// Records are compared field by field with a comparator chosen by field type
// (Jaro-Winkler and token cosine for names and free text, an edit-distance
// ratio for short strings, equality for exact fields). The resulting feature
// vectors feed a logistic regression trained by gradient descent and pulled
// toward a prior, so a model with no labels still ranks pairs sensibly.
//
// Candidate pairs come from token blocking: two records are only compared
// when they share a field token that is neither too short nor too common.
// Active learning offers the candidate the current model is least sure
// about. Clustering greedily assigns each left record to at most one right
// record in descending score order.
package linker
