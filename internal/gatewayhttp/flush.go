package gatewayhttp

import "net/http"

// flushWriter flushes the underlying ResponseWriter after every write so
// SSE frames reach the client as they're produced rather than buffering.
type flushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if f.flusher != nil {
		f.flusher.Flush()
	}
	return n, err
}
