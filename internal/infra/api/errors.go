package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"course-subscription/internal/domain"
	"course-subscription/internal/domain/model"
)

var errRateLimited = errors.New("too many checkout attempts")

type errorBody struct {
	Error      string           `json:"error"`
	Retryable  bool             `json:"retryable"`
	NextAction model.NextAction `json:"next_action,omitempty"`
}

func statusFor(err error) int {
	var ve *domain.ValidationError
	var ge *domain.GatewayError
	var te *domain.TransportError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrLockBusy), errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &ge):
		switch {
		case ge.StatusCode == http.StatusNotFound:
			return http.StatusNotFound
		case ge.StatusCode == http.StatusUnauthorized:
			return http.StatusUnauthorized
		case ge.StatusCode >= 400 && ge.StatusCode < 500:
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	case errors.As(err, &te):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: domain.UserMessage(err), Retryable: domain.Retryable(err)}
	if errors.Is(err, errRateLimited) {
		body.Error = "Too many checkout attempts. Please wait a minute and try again."
		body.Retryable = true
	}
	if body.Retryable {
		body.NextAction = model.NextActionRetry
	}
	writeJSON(w, statusFor(err), body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
