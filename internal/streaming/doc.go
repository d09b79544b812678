// Package streaming writes large response bodies with per-chunk write
// deadlines.
//
// Full-size images decoded from RAW files run to several megabytes. Write
// sends them in chunks, flushing after each one, and extends the
// connection's write deadline per chunk through http.ResponseController:
//
//	n, err := streaming.Write(r.Context(), w, jpegBytes, streaming.DefaultConfig())
//	if errors.Is(err, streaming.ErrWriteTimeout) {
//	    // client stopped reading
//	}
//
// A canceled request context ends the write with ErrClientGone.
package streaming
