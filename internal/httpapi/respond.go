package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// errorBody is the structured error payload returned on every failure:
// {timestamp, status, error, message, path, method}.
type errorBody struct {
	Timestamp string       `json:"timestamp"`
	Status    int          `json:"status"`
	Error     string       `json:"error"`
	Message   string       `json:"message"`
	Path      string       `json:"path"`
	Method    string       `json:"method"`
	Errors    []fieldError `json:"errors,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorBody{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    code,
		Error:     http.StatusText(code),
		Message:   msg,
		Path:      r.URL.Path,
		Method:    r.Method,
	})
}

func writeValidationError(w http.ResponseWriter, r *http.Request, fields []fieldError) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    http.StatusBadRequest,
		Error:     http.StatusText(http.StatusBadRequest),
		Message:   "Validation failed",
		Path:      r.URL.Path,
		Method:    r.Method,
		Errors:    fields,
	})
}

// decodeJSON reads the request body, already capped by the MaxBodyBytes
// middleware, into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
