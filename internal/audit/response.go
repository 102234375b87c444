package audit

import (
	"bufio"
	"net"
	"net/http"
)

// wrapResponseWriter captures the response status on the entry. Hijacking is
// only advertised when the underlying writer supports it.
func wrapResponseWriter(w http.ResponseWriter, e *Entry) http.ResponseWriter {
	wrapped := &statusRecorder{ResponseWriter: w, entry: e}
	if _, ok := w.(http.Hijacker); ok {
		return &hijackingStatusRecorder{wrapped}
	}
	return wrapped
}

type statusRecorder struct {
	http.ResponseWriter
	entry       *Entry
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.entry.Status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(buf []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(buf)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap allows http.ResponseController to reach the underlying writer.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

type hijackingStatusRecorder struct {
	*statusRecorder
}

func (h *hijackingStatusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.ResponseWriter.(http.Hijacker).Hijack()
}
