package decoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"
)

func gradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / width), G: uint8(y * 255 / height), B: 128, A: 255})
		}
	}
	return img
}

func encodeJPEG(t testing.TB, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(width, height), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func writeFile(t testing.TB, path string, data []byte) string {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// exifJPEG builds a JPEG whose APP1 segment carries an IFD1 thumbnail and
// an orientation tag.
func exifJPEG(t testing.TB, main, thumb []byte, orientation uint16) []byte {
	t.Helper()
	le := binary.LittleEndian

	var tiffData bytes.Buffer
	tiffData.Write([]byte{'I', 'I', 0x2A, 0x00})
	_ = binary.Write(&tiffData, le, uint32(8))

	// IFD0: orientation, next IFD at 26
	_ = binary.Write(&tiffData, le, uint16(1))
	_ = binary.Write(&tiffData, le, []uint16{0x0112, 3})
	_ = binary.Write(&tiffData, le, uint32(1))
	_ = binary.Write(&tiffData, le, []uint16{orientation, 0})
	_ = binary.Write(&tiffData, le, uint32(26))

	// IFD1: thumbnail offset and length, data at 56
	_ = binary.Write(&tiffData, le, uint16(2))
	_ = binary.Write(&tiffData, le, []uint16{0x0201, 4})
	_ = binary.Write(&tiffData, le, []uint32{1, 56})
	_ = binary.Write(&tiffData, le, []uint16{0x0202, 4})
	_ = binary.Write(&tiffData, le, []uint32{1, uint32(len(thumb))})
	_ = binary.Write(&tiffData, le, uint32(0))
	if tiffData.Len() != 56 {
		t.Fatalf("unexpected TIFF header length %d", tiffData.Len())
	}
	tiffData.Write(thumb)

	payload := append([]byte("Exif\x00\x00"), tiffData.Bytes()...)

	var out bytes.Buffer
	out.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(main[2:]) // main image without its SOI
	return out.Bytes()
}

func TestDetectContainer(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   container
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, containerJPEG},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, containerPNG},
		{"gif", []byte("GIF89a"), containerGIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), containerWebP},
		{"bmp", []byte("BM\x00\x00"), containerBMP},
		{"tiff little endian", []byte{'I', 'I', 0x2A, 0x00}, containerTIFF},
		{"tiff big endian", []byte{'M', 'M', 0x00, 0x2A}, containerTIFF},
		{"orf", []byte("IIRO\x08\x00"), containerORF},
		{"rw2", []byte{'I', 'I', 'U', 0x00}, containerRW2},
		{"raf", []byte("FUJIFILMCCD-RAW 0201"), containerRAF},
		{"cr3", []byte("\x00\x00\x00\x18ftypcrx "), containerCR3},
		{"heic", []byte("\x00\x00\x00\x18ftypheic"), containerHEIF},
		{"empty", nil, containerUnknown},
		{"text", []byte("hello world"), containerUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectContainer(tt.header); got != tt.want {
				t.Errorf("detectContainer() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConstrainedSize(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
		wantScaled    bool
	}{
		{"within limits", 1000, 800, 1000, 800, false},
		{"wide", 8000, 4000, 4096, 2048, true},
		{"tall", 4000, 8000, 2048, 4096, true},
		{"too many pixels", 4000, 4000, 3000, 3000, true},
		{"zero", 0, 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, scaled := constrainedSize(tt.width, tt.height, 4096, 9_000_000)
			if scaled != tt.wantScaled {
				t.Fatalf("scaled = %v, want %v", scaled, tt.wantScaled)
			}
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("constrainedSize() = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestDecodeThumbnail_EmbeddedPreview(t *testing.T) {
	dir := t.TempDir()
	data := exifJPEG(t, encodeJPEG(t, 800, 600), encodeJPEG(t, 160, 80), 6)
	path := writeFile(t, filepath.Join(dir, "embedded.jpg"), data)

	img, err := NewRaw(Options{}).DecodeThumbnail(path)
	if err != nil {
		t.Fatalf("DecodeThumbnail() error = %v", err)
	}

	// Orientation 6 turns the 160x80 preview upright.
	if b := img.Bounds(); b.Dx() != 80 || b.Dy() != 160 {
		t.Errorf("thumbnail size = %dx%d, want 80x160", b.Dx(), b.Dy())
	}
}

func TestDecodeThumbnail_RenderedFallback(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		file      string
		data      func() []byte
		maxW      int
		maxH      int
		wantExact bool
	}{
		{
			name: "large jpeg is fitted",
			file: "large.jpg",
			data: func() []byte { return encodeJPEG(t, 1200, 800) },
			maxW: 400, maxH: 400,
		},
		{
			name: "small png is kept",
			file: "small.png",
			data: func() []byte {
				var buf bytes.Buffer
				if err := png.Encode(&buf, gradient(100, 50)); err != nil {
					t.Fatalf("png encode: %v", err)
				}
				return buf.Bytes()
			},
			maxW: 100, maxH: 50, wantExact: true,
		},
		{
			name: "tiff image",
			file: "scan.tif",
			data: func() []byte {
				var buf bytes.Buffer
				if err := tiff.Encode(&buf, gradient(600, 300), nil); err != nil {
					t.Fatalf("tiff encode: %v", err)
				}
				return buf.Bytes()
			},
			maxW: 400, maxH: 400,
		},
	}

	dec := NewRaw(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, filepath.Join(dir, tt.file), tt.data())
			img, err := dec.DecodeThumbnail(path)
			if err != nil {
				t.Fatalf("DecodeThumbnail() error = %v", err)
			}
			b := img.Bounds()
			if b.Dx() > tt.maxW || b.Dy() > tt.maxH {
				t.Errorf("thumbnail %dx%d exceeds %dx%d", b.Dx(), b.Dy(), tt.maxW, tt.maxH)
			}
			if tt.wantExact && (b.Dx() != tt.maxW || b.Dy() != tt.maxH) {
				t.Errorf("thumbnail %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.maxW, tt.maxH)
			}
			if !tt.wantExact && max(b.Dx(), b.Dy()) != 400 {
				t.Errorf("thumbnail %dx%d, want longest side 400", b.Dx(), b.Dy())
			}
		})
	}
}

func TestDecodeThumbnail_RAF(t *testing.T) {
	dir := t.TempDir()
	preview := encodeJPEG(t, 640, 480)

	data := make([]byte, 100)
	copy(data, "FUJIFILMCCD-RAW 0201FF383501")
	binary.BigEndian.PutUint32(data[84:], 100)
	binary.BigEndian.PutUint32(data[88:], uint32(len(preview)))
	data = append(data, preview...)

	path := writeFile(t, filepath.Join(dir, "DSCF0001.RAF"), data)
	img, err := NewRaw(Options{ThumbnailSize: 320}).DecodeThumbnail(path)
	if err != nil {
		t.Fatalf("DecodeThumbnail() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("thumbnail size = %dx%d, want 320x240", b.Dx(), b.Dy())
	}
}

func TestDecodeThumbnail_Failures(t *testing.T) {
	dir := t.TempDir()
	dec := NewRaw(Options{})

	t.Run("unknown bytes are unsupported", func(t *testing.T) {
		path := writeFile(t, filepath.Join(dir, "garbage.nef"), []byte("definitely not a raw file"))
		_, err := dec.DecodeThumbnail(path)
		if kind, ok := KindOf(err); !ok || kind != UnsupportedFormat {
			t.Errorf("error = %v, want UnsupportedFormat", err)
		}
	})

	t.Run("truncated jpeg is corrupt", func(t *testing.T) {
		data := encodeJPEG(t, 200, 200)
		path := writeFile(t, filepath.Join(dir, "truncated.jpg"), data[:len(data)/3])
		_, err := dec.DecodeThumbnail(path)
		if kind, ok := KindOf(err); !ok || kind != CorruptData {
			t.Errorf("error = %v, want CorruptData", err)
		}
	})

	t.Run("missing file is an io error", func(t *testing.T) {
		_, err := dec.DecodeThumbnail(filepath.Join(dir, "missing.cr2"))
		if kind, ok := KindOf(err); !ok || kind != IOError {
			t.Errorf("error = %v, want IOError", err)
		}
	})

	t.Run("tiff raw without preview", func(t *testing.T) {
		var buf bytes.Buffer
		if err := tiff.Encode(&buf, gradient(64, 64), nil); err != nil {
			t.Fatalf("tiff encode: %v", err)
		}
		path := writeFile(t, filepath.Join(dir, "nopreview.nef"), buf.Bytes())
		img, err := dec.DecodeThumbnail(path)
		if err == nil || img != nil {
			t.Fatalf("DecodeThumbnail() = %v, %v; want failure", img, err)
		}
		if _, ok := KindOf(err); !ok && !errors.Is(err, ErrNoThumbnail) {
			t.Errorf("error = %v, want DecodeError or ErrNoThumbnail", err)
		}
	})
}

func TestDecode_Full(t *testing.T) {
	dir := t.TempDir()
	dec := NewRaw(Options{MaxDimension: 1000, MaxPixels: 10_000_000})

	path := writeFile(t, filepath.Join(dir, "wide.jpg"), encodeJPEG(t, 2000, 500))
	img, err := dec.Decode(path)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1000 || b.Dy() != 250 {
		t.Errorf("Decode() size = %dx%d, want 1000x250", b.Dx(), b.Dy())
	}

	small := writeFile(t, filepath.Join(dir, "small.jpg"), encodeJPEG(t, 300, 200))
	img, err = dec.Decode(small)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 200 {
		t.Errorf("Decode() size = %dx%d, want 300x200", b.Dx(), b.Dy())
	}

	_, err = dec.Decode(writeFile(t, filepath.Join(dir, "x.heic"), []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00")))
	if kind, ok := KindOf(err); !ok || kind != UnsupportedFormat {
		t.Errorf("Decode(heic) error = %v, want UnsupportedFormat", err)
	}
}

func TestDecodeError(t *testing.T) {
	inner := errors.New("boom")
	err := error(&DecodeError{Kind: CorruptData, Path: "/x.nef", Err: inner})

	if !errors.Is(err, inner) {
		t.Error("DecodeError should unwrap to its cause")
	}
	if got := err.Error(); got != "decode /x.nef: corrupt_data: boom" {
		t.Errorf("Error() = %q", got)
	}
	if got := reason(err); got != "corrupt_data" {
		t.Errorf("reason() = %q", got)
	}
	if got := reason(ErrNoThumbnail); got != "no_thumbnail" {
		t.Errorf("reason(ErrNoThumbnail) = %q", got)
	}
}

func TestApplyOrientation(t *testing.T) {
	src := gradient(40, 20)
	for orientation := 1; orientation <= 8; orientation++ {
		b := applyOrientation(src, orientation).Bounds()
		rotated := orientation >= 5
		if rotated && (b.Dx() != 20 || b.Dy() != 40) {
			t.Errorf("orientation %d: size %dx%d, want 20x40", orientation, b.Dx(), b.Dy())
		}
		if !rotated && (b.Dx() != 40 || b.Dy() != 20) {
			t.Errorf("orientation %d: size %dx%d, want 40x20", orientation, b.Dx(), b.Dy())
		}
	}
}
