package middleware

import (
	"net/http"

	"github.com/zapsub/bot-server-go/internal/config"
)

// BodyLimitMiddleware rejects oversized request bodies before a handler
// decodes them. Every inbound payload here (sends, mode switches, PIX
// callbacks) is a small JSON document.
type BodyLimitMiddleware struct {
	maxBytes int64
}

func NewBodyLimitMiddleware(maxBytes int64) *BodyLimitMiddleware {
	if maxBytes <= 0 {
		maxBytes = config.MaxRequestBodyBytes
	}
	return &BodyLimitMiddleware{maxBytes: maxBytes}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > m.maxBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "Request body too large",
			})
			return
		}

		// ContentLength can lie (or be -1 for chunked bodies); the reader is
		// the enforcement that holds.
		r.Body = http.MaxBytesReader(w, r.Body, m.maxBytes)
		next.ServeHTTP(w, r)
	})
}
