/*
Package catalog owns gallery.json, the per-gallery document listing a
gallery's metadata and its ordered media items.

A catalog is one flat JSON document, so two overlapping load-modify-save
cycles on the same gallery would lose whichever write landed first.
Repository prevents that with a mutex keyed by gallery id: Update,
AppendItem, ApplyTranscode, DeleteItem, Reorder, SetPIN, Create and Delete
all run their whole cycle while holding it. Work that can block for a long
time (moving upload bytes, running ffmpeg) happens before the lock is taken.

Saves are full overwrites through a temp file and rename. Loads apply
defaults for absent fields. An unparsable document is reported with
ErrCorrupt together with a placeholder catalog; the next mutation renames
the bad file to gallery.json.corrupt.<unix> and starts from the placeholder.
*/
package catalog
