package streaming

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

// chunkRecorder records the size of every write and flush.
type chunkRecorder struct {
	*httptest.ResponseRecorder
	writes  []int
	flushes int
	fail    error
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	if c.fail != nil {
		return 0, c.fail
	}
	c.writes = append(c.writes, len(p))
	return c.ResponseRecorder.Write(p)
}

func (c *chunkRecorder) Flush() {
	c.flushes++
	c.ResponseRecorder.Flush()
}

func TestWrite_Chunks(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 10)

	tests := []struct {
		name      string
		chunkSize int
		want      []int
	}{
		{"even chunks", 5, []int{5, 5}},
		{"remainder", 4, []int{4, 4, 2}},
		{"single write", 0, []int{10}},
		{"chunk larger than body", 64, []int{10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &chunkRecorder{ResponseRecorder: httptest.NewRecorder()}

			n, err := Write(context.Background(), w, body, Config{ChunkSize: tt.chunkSize, WriteTimeout: time.Second})
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if n != int64(len(body)) {
				t.Errorf("Write() = %d, want %d", n, len(body))
			}
			if len(w.writes) != len(tt.want) {
				t.Fatalf("writes = %v, want %v", w.writes, tt.want)
			}
			for i := range tt.want {
				if w.writes[i] != tt.want[i] {
					t.Errorf("writes = %v, want %v", w.writes, tt.want)
					break
				}
			}
			if w.flushes != len(tt.want) {
				t.Errorf("flushes = %d, want %d", w.flushes, len(tt.want))
			}
			if !bytes.Equal(w.Body.Bytes(), body) {
				t.Errorf("body = %q, want %q", w.Body.Bytes(), body)
			}
		})
	}
}

func TestWrite_EmptyBody(t *testing.T) {
	w := &chunkRecorder{ResponseRecorder: httptest.NewRecorder()}

	n, err := Write(context.Background(), w, nil, DefaultConfig())
	if err != nil || n != 0 {
		t.Errorf("Write(nil) = %d, %v; want 0, nil", n, err)
	}
	if len(w.writes) != 0 {
		t.Errorf("writes = %v, want none", w.writes)
	}
}

func TestWrite_Errors(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		fail error
		want error
	}{
		{"client gone", canceled, nil, ErrClientGone},
		{"deadline", context.Background(), os.ErrDeadlineExceeded, ErrWriteTimeout},
		{"other", context.Background(), http.ErrHandlerTimeout, http.ErrHandlerTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &chunkRecorder{ResponseRecorder: httptest.NewRecorder(), fail: tt.fail}

			n, err := Write(tt.ctx, w, []byte("payload"), DefaultConfig())
			if !errors.Is(err, tt.want) {
				t.Errorf("Write() error = %v, want %v", err, tt.want)
			}
			if n != 0 {
				t.Errorf("Write() = %d, want 0", n)
			}
		})
	}
}

func TestWrite_OverRealConnection(t *testing.T) {
	body := bytes.Repeat([]byte("raw"), 100_000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := Write(r.Context(), w, body, Config{WriteTimeout: 5 * time.Second, ChunkSize: 16 * 1024}); err != nil {
			t.Errorf("Write() error = %v", err)
		}
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	var got bytes.Buffer
	if _, err := got.ReadFrom(resp.Body); err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if !bytes.Equal(got.Bytes(), body) {
		t.Errorf("received %d bytes, want %d", got.Len(), len(body))
	}
}
