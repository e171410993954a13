// Command galleryctl administers a SmallPhotos data directory from the shell.
//
// Usage:
//
//	galleryctl [--data-dir DIR] <command>
//
// Commands:
//
//	list               List galleries with image, video, pending and failed
//	                   counts and whether a PIN is set.
//
//	set-pin <gallery>  Prompt twice for a PIN and store its bcrypt hash on the
//	                   gallery catalog. Reads two lines when stdin is a pipe.
//
//	clear-pin <gallery>
//	                   Remove the gallery PIN.
//
//	jobs [--limit N]   Show the most recent transcode jobs from the journal.
//
// Environment:
//
//	DATA_DIR - Path to the data directory (default: /data). A .env file in
//	           the working directory is loaded first.
//
// list and jobs only read and are safe while the server runs. set-pin and
// clear-pin rewrite gallery.json without the server's per-gallery lock, so
// run them with the server stopped. While it is up, change PINs with
// PUT /api/galleries/{id}/pin instead.
package main
