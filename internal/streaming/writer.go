package streaming

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"peekraw/internal/logging"
)

var (
	// ErrWriteTimeout indicates that a chunk could not be written within the
	// configured timeout. This typically means the client stopped reading.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the request context ended before the
	// body was fully written.
	ErrClientGone = errors.New("client disconnected")
)

// Config configures Write.
type Config struct {
	// WriteTimeout bounds each chunk write (0 = no deadline).
	WriteTimeout time.Duration
	// ChunkSize is the size of each write (0 = a single write).
	ChunkSize int
}

// DefaultConfig returns the configuration used for full-size images.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// Write sends body in chunks, flushing after each one and moving the
// connection write deadline forward per chunk so a stalled client cannot
// hold the handler. Writers that do not support deadlines or flushing are
// written to without them.
func Write(ctx context.Context, w http.ResponseWriter, body []byte, config Config) (int64, error) {
	rc := http.NewResponseController(w)
	start := time.Now()
	var written int64

	defer func() {
		if config.WriteTimeout > 0 {
			_ = rc.SetWriteDeadline(time.Time{})
		}
	}()

	chunk := config.ChunkSize
	if chunk <= 0 {
		chunk = len(body)
	}

	for len(body) > 0 {
		if ctx.Err() != nil {
			return written, ErrClientGone
		}

		n := min(chunk, len(body))
		if config.WriteTimeout > 0 {
			err := rc.SetWriteDeadline(time.Now().Add(config.WriteTimeout))
			if err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, err
			}
		}

		m, err := w.Write(body[:n])
		written += int64(m)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return written, ErrWriteTimeout
			}
			if ctx.Err() != nil {
				return written, ErrClientGone
			}
			return written, err
		}
		body = body[n:]

		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return written, err
		}
	}

	logging.Debug("Stream completed: %d bytes in %v", written, time.Since(start))
	return written, nil
}
