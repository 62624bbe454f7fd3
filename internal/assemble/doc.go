// Package assemble joins cluster membership back onto the input rows and
// writes the merged table.
//
// Every input row produces exactly one output row: left rows first, then
// right rows, each in file order. Rows that belong to a cluster carry its
// emission index and score; the rest leave both annotation columns empty.
package assemble
