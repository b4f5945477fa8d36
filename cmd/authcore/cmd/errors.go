package cmd

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/authcore"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// mapError writes the sentinel's message, never the wrapped cause, so store
// addresses and driver errors stay in the log.
func mapError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, authcore.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, authcore.ErrInvalidRequest.Error())
	case errors.Is(err, authcore.ErrStoreUnavailable):
		log.Error("store unavailable", slog.Any("error", err))
		writeError(w, http.StatusServiceUnavailable, authcore.ErrStoreUnavailable.Error())
	case errors.Is(err, authcore.ErrOTPRateLimited):
		writeError(w, http.StatusTooManyRequests, authcore.ErrOTPRateLimited.Error())
	case errors.Is(err, authcore.ErrRefreshRateLimited):
		writeError(w, http.StatusTooManyRequests, authcore.ErrRefreshRateLimited.Error())
	case errors.Is(err, authcore.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, authcore.ErrSessionExpired.Error())
	case errors.Is(err, authcore.ErrOTPExpired):
		writeError(w, http.StatusUnauthorized, authcore.ErrOTPExpired.Error())
	case errors.Is(err, authcore.ErrOTPInvalid):
		writeError(w, http.StatusUnauthorized, authcore.ErrOTPInvalid.Error())
	case errors.Is(err, authcore.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, authcore.ErrInvalidCredentials.Error())
	case errors.Is(err, authcore.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, authcore.ErrUnauthorized.Error())
	case errors.Is(err, authcore.ErrPasswordChangeNotAllowed):
		writeError(w, http.StatusForbidden, authcore.ErrPasswordChangeNotAllowed.Error())
	case errors.Is(err, authcore.ErrUserNotFound):
		writeError(w, http.StatusUnauthorized, authcore.ErrUserNotFound.Error())
	case errors.Is(err, authcore.ErrOTPDeliveryFailed):
		log.Error("otp delivery failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, authcore.ErrOTPDeliveryFailed.Error())
	default:
		log.Error("request failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return authcore.ErrInvalidRequest
	}
	return nil
}
