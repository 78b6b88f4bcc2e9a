package handler

import (
	"bytes"
	"net/http"
)

// bufferedResponse captures the upstream response so it can be relayed (or
// discarded) after the breaker settles the call. It is only read once the
// proxy round trip has completed.
type bufferedResponse struct {
	header     http.Header
	statusCode int
	body       bytes.Buffer
	committed  bool
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{
		header:     make(http.Header),
		statusCode: http.StatusOK,
	}
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) WriteHeader(code int) {
	if b.committed {
		return
	}
	b.statusCode = code
	b.committed = true
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.committed = true
	return b.body.Write(p)
}

// flush copies the captured response to the real writer.
func (b *bufferedResponse) flush(w http.ResponseWriter) {
	for key, values := range b.header {
		for _, value := range values {
			w.Header()[key] = append(w.Header()[key], value)
		}
	}
	w.WriteHeader(b.statusCode)
	w.Write(b.body.Bytes())
}
