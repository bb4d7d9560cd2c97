package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// hashTokens precomputes the digests of the configured bearer tokens so
// request-time comparison never touches the plaintext.
func hashTokens(tokens []string) [][]byte {
	hashed := make([][]byte, 0, len(tokens))
	for _, token := range tokens {
		sum := sha256.Sum256([]byte(token))
		hashed = append(hashed, sum[:])
	}

	return hashed
}

// requireToken checks the Authorization header against the configured
// bearer tokens.
func (s *server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authentication required"})

			return
		}

		sum := sha256.Sum256([]byte(strings.TrimSpace(header[7:])))

		for _, token := range s.tokens {
			if subtle.ConstantTimeCompare(sum[:], token) == 1 {
				next.ServeHTTP(w, r)

				return
			}
		}

		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"invalid token"})
	})
}
