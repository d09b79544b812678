package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType represents the kind of a gallery entry.
type FileType string

const (
	// FileTypeRaw represents a camera RAW file.
	FileTypeRaw FileType = "raw"
	// FileTypeImage represents a rendered image format (jpeg, png, ...).
	FileTypeImage FileType = "image"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// RawExtensions maps camera RAW extensions to whether they are recognised.
var RawExtensions = map[string]bool{
	".3fr": true,
	".arw": true,
	".cr2": true,
	".cr3": true,
	".crw": true,
	".dcr": true,
	".dng": true,
	".erf": true,
	".iiq": true,
	".k25": true,
	".kdc": true,
	".mef": true,
	".mos": true,
	".mrw": true,
	".nef": true,
	".nrw": true,
	".orf": true,
	".pef": true,
	".raf": true,
	".raw": true,
	".rw2": true,
	".rwl": true,
	".sr2": true,
	".srf": true,
	".srw": true,
	".x3f": true,
}

// ImageExtensions maps rendered image extensions to whether they are
// recognised.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",

	// RAW
	".arw": "image/x-sony-arw",
	".cr2": "image/x-canon-cr2",
	".cr3": "image/x-canon-cr3",
	".crw": "image/x-canon-crw",
	".dng": "image/x-adobe-dng",
	".nef": "image/x-nikon-nef",
	".nrw": "image/x-nikon-nrw",
	".orf": "image/x-olympus-orf",
	".pef": "image/x-pentax-pef",
	".raf": "image/x-fuji-raf",
	".rw2": "image/x-panasonic-rw2",
	".srw": "image/x-samsung-srw",
	".x3f": "image/x-sigma-x3f",
}

// Ext returns the lowercase extension of path including the leading dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// GetFileType returns the FileType for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".nef").
// Returns FileTypeOther if the extension is not recognized.
func GetFileType(ext string) FileType {
	if RawExtensions[ext] {
		return FileTypeRaw
	}
	if ImageExtensions[ext] {
		return FileTypeImage
	}
	return FileTypeOther
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsGalleryFile returns true if the path names a file the gallery lists.
func IsGalleryFile(path string) bool {
	return GetFileType(Ext(path)) != FileTypeOther
}
