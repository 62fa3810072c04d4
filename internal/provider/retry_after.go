package provider

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// ParseRetryAfter reads the Retry-After header in either delta-seconds or HTTP-date form.
// Returns 0 when the header is absent, malformed, or already in the past.
func ParseRetryAfter(header http.Header) time.Duration {
	val := header.Get("Retry-After")
	if val == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(val); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(val); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}

	slog.Debug("unparseable Retry-After header", "value", val)
	return 0
}
