package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"financeflow/internal/core"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object from the request body. Unknown
// fields and trailing data are rejected.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &core.ValidationError{Field: "body", Reason: "empty request body"}
		}
		return &core.ValidationError{Field: "body", Reason: err.Error()}
	}
	if dec.More() {
		return &core.ValidationError{Field: "body", Reason: "unexpected data after JSON object"}
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.ValidationError{Field: name, Reason: fmt.Sprintf("%q is not a valid id", raw)}
	}
	return id, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &core.ValidationError{Field: name, Reason: fmt.Sprintf("%q is not a number", raw)}
	}
	return n, nil
}

// queryInt returns the named query parameter, or def when it is absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &core.ValidationError{Field: name, Reason: fmt.Sprintf("%q is not a non-negative number", raw)}
	}
	return n, nil
}
