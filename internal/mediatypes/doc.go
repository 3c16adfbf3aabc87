// Package mediatypes provides shared type definitions for image files
// handled by the library indexer.
//
// This package exists as a dependency-free foundation that can be imported by
// other packages without creating import cycles.
//
// # File Types
//
// Every supported extension maps to a class:
//
//	mediatypes.FileTypeRaster   // jpg, png, webp, tiff, heic, ...
//	mediatypes.FileTypeAnimated // gif
//	mediatypes.FileTypeVector   // svg
//	mediatypes.FileTypeRaw      // camera raw (dng, cr2, nef, arw)
//	mediatypes.FileTypeOther    // everything else, never indexed
//
// Use IsImage to filter directory entries and Format to obtain the value
// stored in the format column:
//
//	if mediatypes.IsImage(name) {
//	    format := mediatypes.Format(name) // "jpg"
//	}
package mediatypes
