package decoder

import (
	"errors"
	"fmt"
	"image"
)

// ErrNoThumbnail is returned by DecodeThumbnail when the file decoded fine
// but carries no embedded thumbnail. It is not a DecodeError; callers that
// only need a displayable thumbnail treat it like a failure.
var ErrNoThumbnail = errors.New("no embedded thumbnail")

// Decoder turns source files into images.
type Decoder interface {
	// Decode returns the full image.
	Decode(path string) (image.Image, error)
	// DecodeThumbnail returns a small preview suitable for a gallery cell.
	DecodeThumbnail(path string) (image.Image, error)
}

// ErrorKind classifies decode failures.
type ErrorKind int

const (
	// UnsupportedFormat means the file is not a format the decoder knows.
	UnsupportedFormat ErrorKind = iota
	// CorruptData means the format was recognised but the content is invalid.
	CorruptData
	// IOError means the file could not be read.
	IOError
)

// String returns the metric label for the kind.
func (k ErrorKind) String() string {
	switch k {
	case UnsupportedFormat:
		return "unsupported_format"
	case CorruptData:
		return "corrupt_data"
	case IOError:
		return "io_error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// DecodeError describes why a file could not be decoded.
type DecodeError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode %s: %s", e.Path, e.Kind)
	}
	return fmt.Sprintf("decode %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a DecodeError anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// reason returns the metric label for an error returned by a decoder.
func reason(err error) string {
	if errors.Is(err, ErrNoThumbnail) {
		return "no_thumbnail"
	}
	if kind, ok := KindOf(err); ok {
		return kind.String()
	}
	return "unknown"
}
