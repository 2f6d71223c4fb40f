// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Attribute keys whose values never reach the log output.
var redactedKeys = []string{"password", "token", "x-auth-token", "authorization"}

// Conform to the slog.Leveler interface. Accepts the slog level names,
// optionally with an offset such as "info+2". Unknown levels mean info.
func (c LoggingConfig) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LevelStr)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Create the handler described by the config, writing to w.
// Token and password attributes are redacted.
func (c LoggingConfig) NewHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       c,
		AddSource:   c.Level() < slog.LevelInfo,
		ReplaceAttr: redactSecrets,
	}
	if c.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, redacted := range redactedKeys {
		if key == redacted {
			return slog.String(a.Key, "[redacted]")
		}
	}
	return a
}

// Set the structured logger as given in the config.
// The CLI logs to stderr, so that command output on stdout stays parseable.
func (c LoggingConfig) SetDefaultLogger() {
	slog.SetDefault(slog.New(c.NewHandler(os.Stderr)))
	slog.Debug("installed default logger", "level", c.Level(), "format", c.Format)
}
