package core

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// gzipWriterPool reuses gzip writers across requests to avoid repeated
// allocations of their internal buffers.
var gzipWriterPool = sync.Pool{
	New: func() any {
		// BestSpeed is sufficient for small JSON bodies.
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	},
}

// gzipResponseWriter wraps an http.ResponseWriter and compresses the body.
type gzipResponseWriter struct {
	http.ResponseWriter
	gz          *gzip.Writer
	wroteHeader bool
}

func (g *gzipResponseWriter) WriteHeader(code int) {
	if !g.wroteHeader {
		// Length of the compressed stream is unknown up front.
		g.Header().Del("Content-Length")
		g.wroteHeader = true
	}
	g.ResponseWriter.WriteHeader(code)
}

func (g *gzipResponseWriter) Write(b []byte) (int, error) {
	if !g.wroteHeader {
		g.WriteHeader(http.StatusOK)
	}
	return g.gz.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (g *gzipResponseWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

// CompressionMiddleware gzip-compresses response bodies when the client
// advertises gzip support. All response bodies this service produces are
// JSON, so no content-type gating is needed.
func CompressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		gz := gzipWriterPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			if rvr := recover(); rvr != nil {
				// Closing here would flush the gzip header to the raw
				// writer and commit an implicit 200 before the Recoverer
				// runs. Discard the writer's state and let the panic
				// propagate to the Recoverer's response instead.
				gz.Reset(io.Discard)
				gzipWriterPool.Put(gz)
				w.Header().Del("Content-Encoding")
				panic(rvr)
			}
			_ = gz.Close()
			gzipWriterPool.Put(gz)
		}()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")

		next.ServeHTTP(&gzipResponseWriter{ResponseWriter: w, gz: gz}, r)
	})
}
