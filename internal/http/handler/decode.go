package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/karingamassive/membership-service/internal/http/middleware"
	"github.com/karingamassive/membership-service/internal/http/response"
	"github.com/karingamassive/membership-service/internal/security"
)

// decodeJSON reads a single JSON object and rejects unknown fields. It
// writes the error response itself and reports whether decoding worked.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			response.Error(w, r, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large", nil)
		case errors.Is(err, io.EOF):
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "request body is required", nil)
		default:
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "malformed JSON body", nil)
		}
		return false
	}
	return true
}

func identity(w http.ResponseWriter, r *http.Request) (security.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTH_REQUIRED", "missing auth context", nil)
	}
	return id, ok
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func parseID(raw string) (uint, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(n), nil
}
