package server

import (
	"encoding/json"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"lpstaking/native/lpstake"
)

type errorBody struct {
	Error     errorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an engine error code onto an HTTP status.
func statusFor(code string) int {
	switch code {
	case "invalid_amount", "invalid_emission_type", "invalid_decay_factor",
		"invalid_blocks_per_period", "unknown_asset", "empty_pool":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusForbidden
	case "pool_not_found", "position_not_found":
		return http.StatusNotFound
	case "pool_exists":
		return http.StatusConflict
	case "insufficient_balance", "insufficient_stake", "no_reward_to_claim",
		"insufficient_reward_vault", "arithmetic_overflow":
		return http.StatusUnprocessableEntity
	case "paused":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code := lpstake.ErrorCode(err)
	status := statusFor(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeError(w, r, status, code, message)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	body := errorBody{Error: errorDetail{Code: code, Message: message}}
	if r != nil {
		body.RequestID = chimw.GetReqID(r.Context())
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
