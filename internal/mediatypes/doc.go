// Package mediatypes is the single lookup table from file extension to media
// kind used by the upload pipeline, the catalog loader and media serving.
//
// It has no dependencies beyond the standard library so any package can import
// it without creating cycles.
//
//	kind, ok := mediatypes.Lookup(mediatypes.Ext("clip.MOV"))
//	// kind == mediatypes.KindVideo, ok == true
//
// Extensions absent from both ImageExtensions and VideoExtensions are rejected
// at upload time.
package mediatypes
