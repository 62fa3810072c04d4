package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/ethereum/go-ethereum/common"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.APIError{
		Error: models.APIErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeFailure maps err onto its code and HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	code := config.ErrorCode(err)
	writeError(w, statusForCode(code), code, err.Error())
}

func statusForCode(code string) int {
	switch code {
	case config.ErrorPreconditionUnmet,
		config.ErrorInvalidAddress,
		config.ErrorInvalidRequest,
		config.ErrorInvalidBlockRange,
		config.ErrorUnsupportedAction:
		return http.StatusBadRequest
	case config.ErrorNotFound:
		return http.StatusNotFound
	case config.ErrorSubmissionBusy:
		return http.StatusConflict
	case config.ErrorSubmissionRejected:
		return http.StatusUnprocessableEntity
	case config.ErrorProviderRateLimit:
		return http.StatusTooManyRequests
	case config.ErrorProviderUnavailable,
		config.ErrorUpstreamDataUnavailable,
		config.ErrorDecodeFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads an optional JSON body into dst. An empty body is not an error.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseAddress accepts an optional hex address. "" yields the zero address.
func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %s %q", config.ErrInvalidAddress, field, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseIntParam(r *http.Request, key string, defaultVal int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer query param", "key", key, "value", raw)
		return defaultVal
	}
	return v
}

func logScanLogFailure(pipeline string, err error) {
	slog.Error("failed to record scan log", "pipeline", pipeline, "error", err)
}
