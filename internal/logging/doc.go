// Package logging builds the slog loggers used by reclink.
//
// A run logs to the console (stderr) in either the pretty "console" layout or
// JSON, and optionally tees every record as JSON into a log file so operators
// can diff runs later. Verbosity flags map onto levels through
// LevelForVerbosity. Use NewComponentLogger to tag lines with the emitting
// stage and WarnWithContext/ErrorWithContext when a line needs an operator
// hint.
package logging
