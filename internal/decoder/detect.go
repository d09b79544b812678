package decoder

import (
	"bytes"
	"io"
)

// container is the file format recognised from magic bytes.
type container string

const (
	containerJPEG    container = "jpeg"
	containerPNG     container = "png"
	containerGIF     container = "gif"
	containerWebP    container = "webp"
	containerBMP     container = "bmp"
	containerTIFF    container = "tiff" // also NEF, CR2, ARW, DNG, PEF, SRW...
	containerORF     container = "orf"
	containerRW2     container = "rw2"
	containerRAF     container = "raf"
	containerCR3     container = "cr3"
	containerHEIF    container = "heif"
	containerUnknown container = "unknown"
)

// exifCapable reports whether goexif can look for an embedded thumbnail in
// the container.
func (c container) exifCapable() bool {
	switch c {
	case containerJPEG, containerTIFF, containerORF, containerRW2:
		return true
	}
	return false
}

// rendered reports whether the container can be decoded directly into
// pixels by the image decoders linked into the binary.
func (c container) rendered() bool {
	switch c {
	case containerJPEG, containerPNG, containerGIF, containerWebP, containerBMP, containerTIFF:
		return true
	}
	return false
}

// sniff reads the first bytes of r and identifies the container.
func sniff(r io.ReaderAt) (container, error) {
	header := make([]byte, 32)
	n, err := r.ReadAt(header, 0)
	if err != nil && err != io.EOF {
		return containerUnknown, err
	}
	return detectContainer(header[:n]), nil
}

func detectContainer(header []byte) container {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return containerJPEG

	case len(header) >= 8 && bytes.Equal(header[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return containerPNG

	case len(header) >= 4 && bytes.Equal(header[:4], []byte("GIF8")):
		return containerGIF

	case len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return containerWebP

	case len(header) >= 2 && header[0] == 'B' && header[1] == 'M':
		return containerBMP

	case len(header) >= 15 && bytes.Equal(header[:15], []byte("FUJIFILMCCD-RAW")):
		return containerRAF

	case len(header) >= 4 && header[0] == 'I' && header[1] == 'I' && header[2] == 'R' && (header[3] == 'O' || header[3] == 'S'):
		return containerORF

	case len(header) >= 4 && header[0] == 'I' && header[1] == 'I' && header[2] == 'U' && header[3] == 0x00:
		return containerRW2

	case len(header) >= 4 && ((header[0] == 'I' && header[1] == 'I' && header[2] == 0x2A && header[3] == 0x00) ||
		(header[0] == 'M' && header[1] == 'M' && header[2] == 0x00 && header[3] == 0x2A)):
		return containerTIFF

	case len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp")):
		switch string(header[8:12]) {
		case "crx ":
			return containerCR3
		case "heic", "heix", "hevc", "hevx", "mif1", "msf1", "avif":
			return containerHEIF
		}
	}

	return containerUnknown
}
