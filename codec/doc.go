// Package codec moves data objects between processes as length-prefixed
// frames.
//
// A frame is
//
//	[tag u8][flags u8][length u64 big-endian][payload]
//
// where tag identifies the object kind, flags carries FlagZstd when the
// payload is zstd-compressed, and the payload is the JSON body of the object
// encoded with sonic. Error frames carry an errors.ErrorResponse body so a
// worker can report a failed fetch on the same stream.
package codec
