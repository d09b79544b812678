// Package mediatypes classifies files by extension for the gallery.
//
// It is a dependency-free foundation that can be imported by the file source,
// the decoders and the HTTP layer without creating import cycles.
//
// Two families of files are listed by the gallery:
//
//	mediatypes.FileTypeRaw   // Camera RAW files (nef, cr2, arw, dng, ...)
//	mediatypes.FileTypeImage // Rendered formats (jpg, png, tiff, ...)
//
// Everything else is FileTypeOther and is skipped during enumeration:
//
//	if !mediatypes.IsGalleryFile(path) {
//	    continue
//	}
//
// Use GetMimeType for HTTP responses serving originals.
package mediatypes
