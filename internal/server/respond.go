package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/workforcelab/intraday/internal/domain"
)

// statusClientClosedRequest mirrors the nginx convention for requests the
// caller abandoned.
const statusClientClosedRequest = 499

// validate caches struct metadata, so one instance serves every handler.
var validate = validator.New()

// errorBody is the error shape of every API response: a compact kind plus a
// human-readable cause.
type errorBody struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// writeJSON encodes v with the given status.
func writeJSON(log zerolog.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps a domain error onto an HTTP status and the error body.
func writeError(log zerolog.Logger, w http.ResponseWriter, err error) {
	kind := domain.ErrorKind(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("kind", kind).Msg("Request failed")
	} else {
		log.Debug().Err(err).Str("kind", kind).Msg("Request rejected")
	}
	writeJSON(log, w, status, errorBody{Kind: kind, Error: err.Error()})
}

func statusForKind(kind string) int {
	switch kind {
	case "not_found":
		return http.StatusNotFound
	case "validation_error":
		return http.StatusBadRequest
	case "conflict":
		return http.StatusConflict
	case "timeout":
		return http.StatusGatewayTimeout
	case "cancelled":
		return statusClientClosedRequest
	case "capacity":
		return http.StatusTooManyRequests
	case "upstream":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON parses the request body into v and runs its validate tags.
// Unknown fields are rejected so typos surface instead of being dropped.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: field %s fails %q", domain.ErrValidation, f.Field(), f.Tag())
		}
		return fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}
	return nil
}

// queryTime parses an RFC3339 or YYYY-MM-DD query parameter, falling back
// to def when absent.
func queryTime(r *http.Request, key string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC3339 or YYYY-MM-DD, got %q", domain.ErrValidation, key, raw)
	}
	return t, nil
}

// queryRange builds the [start, end) day range from query parameters.
// Both are required.
func queryRange(r *http.Request) (domain.DateRange, error) {
	start, err := queryTime(r, "start", time.Time{})
	if err != nil {
		return domain.DateRange{}, err
	}
	end, err := queryTime(r, "end", time.Time{})
	if err != nil {
		return domain.DateRange{}, err
	}
	if start.IsZero() || end.IsZero() {
		return domain.DateRange{}, fmt.Errorf("%w: start and end query parameters are required", domain.ErrValidation)
	}
	dr := domain.NewDateRange(start, end)
	if err := dr.Validate(); err != nil {
		return domain.DateRange{}, err
	}
	return dr, nil
}

// queryLimit parses a positive limit parameter with a default.
func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n <= 0 {
		return def
	}
	return n
}
