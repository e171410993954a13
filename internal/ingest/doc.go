// Package ingest implements the upload pipeline.
//
// A batch is validated as a whole first: an empty batch, an invalid gallery
// id, or more videos than the configured cap rejects the upload before
// anything is written. After that the gallery is created if needed and
// each file is handled on its own:
//
//  1. the extension is checked against the allow-list
//  2. the bytes are written under a fresh collision-free name
//  3. a catalog record is appended under the gallery lock
//  4. videos are queued for transcoding, images get a thumbnail
//
// A failure in one file never undoes the files before it.
package ingest
