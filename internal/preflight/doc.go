// Package preflight provides readiness checks for the filesystem paths a
// reclink workspace depends on.
//
// The CLI "reclink config validate" command runs RunAll after the
// configuration itself validates, so unreadable inputs or unwritable
// artifact directories surface before an interactive labeling session
// starts rather than when its results are saved.
package preflight
