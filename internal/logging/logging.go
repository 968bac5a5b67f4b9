// SPDX-License-Identifier: AGPL-3.0-or-later
// OCP - Orchestrator Control Protocol
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package logging builds the process-wide slog.Logger from config.LogLevel,
// using tint for colorized console output.
package logging

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/ocpctl/ocp/internal/config"
)

// New builds a slog.Logger for the given level. Debug and Info go to
// stdout; Warn and Error go to stderr.
func New(level config.LogLevel) *slog.Logger {
	switch level {
	case config.LogLevelDebug:
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug}))
	case config.LogLevelInfo:
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	case config.LogLevelWarn:
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelWarn}))
	case config.LogLevelError:
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelError}))
	default:
		// Fall back to info level for an unrecognized level rather than a nil logger.
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	}
}

// SetDefault builds a logger for level and installs it as slog's package
// default, so every package that logs via the slog.Info/.Error free
// functions picks it up without threading a *slog.Logger through.
func SetDefault(level config.LogLevel) *slog.Logger {
	logger := New(level)
	slog.SetDefault(logger)
	return logger
}
