package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/balmgr/internal/domain"
	"github.com/MrSnakeDoc/balmgr/internal/metrics"
)

type errorResponse struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	if kind := metrics.Classify(err); kind != metrics.ResultOther {
		resp.Kind = kind
	}

	var multi interface{ Unwrap() []error }
	if errors.As(err, &multi) {
		for _, e := range multi.Unwrap() {
			resp.Errors = append(resp.Errors, e.Error())
		}
	}
	writeJSON(w, status, resp)
}

// statusFor maps a client error to an HTTP status. Aggregates are mapped by
// the first failure errors.As finds in them.
func statusFor(err error) int {
	var (
		nfe *domain.NotFoundError
		ive *domain.InvariantViolationError
		uve *domain.UnsupportedVersionError
		ve  *domain.VerificationError
		te  *domain.TransportError
		pe  *domain.ParseError
	)
	switch {
	case errors.As(err, &nfe):
		return http.StatusNotFound
	case errors.As(err, &ive):
		return http.StatusConflict
	case errors.As(err, &uve):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ve), errors.As(err, &te), errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
