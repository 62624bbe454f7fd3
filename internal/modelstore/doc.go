// Package modelstore persists the training set and the trained settings
// artifact between runs.
//
// Two backends share the Store interface. The file backend keeps the
// training set as a versioned JSON document and the settings as the opaque
// bytes produced by the linker codec, each replaced atomically. The sqlite
// backend keeps both in one database. Neither backend interprets settings
// bytes; decoding goes through the injected linkage.ModelCodec and a model
// whose field specs differ from the configured ones is reported as corrupt.
package modelstore
