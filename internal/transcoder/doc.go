// Package transcoder re-encodes uploaded videos for web playback.
//
// Worker owns a queue of jobs, a pool of encoder goroutines and one applier
// goroutine. Encoders never touch catalogs; they send a Result message and
// the applier records it through the catalog repository. An item that was
// deleted while its video was encoding is left alone and the output is
// discarded.
//
// FFmpegEncoder runs ffmpeg with a fixed argument set (see Args) and tracks
// running processes so Cleanup can kill them on shutdown. Recover resolves
// jobs a crashed process left in the journal.
package transcoder
