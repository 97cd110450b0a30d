package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/timegarden/backend/internal/httputil"
	"github.com/timegarden/backend/internal/validate"
)

const maxBodyBytes = 1 << 20

// BodyValidator is the interface used by ValidateBody.
type BodyValidator interface {
	Validate(schema string, body []byte) error
}

// ValidateBody checks the JSON body against the named schema before the
// handler runs. Reads the body, then replaces r.Body so downstream handlers
// can re-read it.
func ValidateBody(v BodyValidator, schema string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
			r.Body.Close()
			if err != nil {
				httputil.WriteError(w, http.StatusBadRequest, "failed to read body")
				return
			}
			if len(bodyBytes) > maxBodyBytes {
				httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			if len(bytes.TrimSpace(bodyBytes)) == 0 {
				bodyBytes = []byte("{}")
			}
			if err := v.Validate(schema, bodyBytes); err != nil {
				if errors.Is(err, validate.ErrValidation) {
					httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
					return
				}
				httputil.WriteError(w, http.StatusInternalServerError, "internal error")
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			next.ServeHTTP(w, r)
		})
	}
}
