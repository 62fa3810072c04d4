package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Fantasim/rektrescue/internal/config"
)

const redacted = "[redacted]"

// Attribute keys whose values never reach the log.
var secretKeys = map[string]struct{}{
	"privatekey": {},
	"apikey":     {},
	"secret":     {},
	"mnemonic":   {},
}

// apiKeyParam matches credentials embedded in URLs, e.g. ...?apikey=XYZ or /v3/<hex>.
var (
	apiKeyParam = regexp.MustCompile(`(?i)(apikey|api_key|key|token)=[^&\s"]+`)
	pathKey     = regexp.MustCompile(`/v[0-9]+/[0-9a-fA-F]{32,}`)
)

// Setup installs the default slog logger writing JSON to stdout and to a
// per-day file under logDir, with secrets scrubbed. Old files are pruned.
// The returned Closer releases the file.
func Setup(levelStr, logDir string) (io.Closer, error) {
	level, err := parseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level %q: %w", levelStr, err)
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", logDir, err)
	}

	filename := fmt.Sprintf(config.LogFilePattern, time.Now().Format("2006-01-02"))
	path := filepath.Join(logDir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %q: %w", path, err)
	}

	slog.SetDefault(slog.New(NewHandler(io.MultiWriter(os.Stdout, file), level)))

	slog.Info("logging initialized",
		"level", level.String(),
		"logDir", logDir,
		"logFile", filename,
	)

	if removed := CleanOldLogs(logDir, config.LogMaxAgeDays); removed > 0 {
		slog.Info("cleaned old log files", "removed", removed, "maxAgeDays", config.LogMaxAgeDays)
	}

	return file, nil
}

// NewHandler returns the JSON handler used by Setup.
func NewHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: Redact,
	})
}

// Redact hides secret-named attributes and strips credentials from URL-like strings.
func Redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := secretKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		if s := scrub(a.Value.String()); s != a.Value.String() {
			return slog.String(a.Key, s)
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			if s := scrub(err.Error()); s != err.Error() {
				return slog.String(a.Key, s)
			}
		}
	}
	return a
}

func scrub(s string) string {
	if !strings.Contains(s, "=") && !strings.Contains(s, "/v") {
		return s
	}
	s = apiKeyParam.ReplaceAllString(s, "${1}="+redacted)
	return pathKey.ReplaceAllStringFunc(s, func(m string) string {
		return m[:strings.LastIndexByte(m, '/')+1] + redacted
	})
}

// CleanOldLogs removes rektrescue-*.log files in logDir last modified more
// than maxAgeDays ago and returns how many were removed.
func CleanOldLogs(logDir string, maxAgeDays int) int {
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)

	matches, err := filepath.Glob(filepath.Join(logDir, config.LogFilePrefix+"*.log"))
	if err != nil {
		slog.Warn("failed to list log files for cleanup", "logDir", logDir, "error", err)
		return 0
	}

	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to remove old log file", "file", path, "error", err)
			continue
		}
		removed++
	}
	return removed
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}
