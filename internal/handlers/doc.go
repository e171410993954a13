// Package handlers provides the HTTP handlers for the gallery API.
//
// It includes handlers for:
//   - Gallery directory listing, creation, metadata updates and removal
//   - Upload batches (multipart field "files")
//   - Item deletion and reordering
//   - PIN set, clear and unlock
//   - Gallery pages, media files and thumbnails
//   - Transcode job listing, health checks and version
//
// Errors are answered as {"error": "..."} with the status chosen from the
// sentinel error: validation 400, not found 404, already exists 409,
// wrong PIN 403, rate limited 429 and storage failures 500.
package handlers
