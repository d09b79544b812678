// Package decoder turns gallery files into images.
//
// RAW files are never demosaiced. Thumbnails come from the JPEG preview a
// camera embeds in the file (located through EXIF, or the RAF header for
// Fujifilm files) and are rotated according to the EXIF orientation.
// Rendered formats (JPEG, PNG, GIF, BMP, TIFF, WebP) are decoded directly
// when they carry no preview. Full-size decodes use libvips when it has been
// initialized and fall back to the pure Go decoders otherwise.
//
// Failures are reported as *DecodeError with a Kind, or ErrNoThumbnail when
// the file is valid but has nothing to show.
package decoder
