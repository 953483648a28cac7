// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging builds the coordinator's structured JSON logger: every
// record carries a timestamp, level and message, written to stdout and
// (best-effort) a log file.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options configures New.
type Options struct {
	// LogPath is the file to additionally write JSON records to. Empty
	// disables the file sink. If the file can't be opened, New falls back
	// to stdout-only instead of failing startup.
	LogPath string
	// Level controls the minimum logged level. Defaults to DebugLevel.
	Level logrus.Level
}

// New builds a *logrus.Logger configured per Options.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat:   "2006-01-02T15:04:05.000Z07:00",
		DisableHTMLEscape: true,
	})

	level := opts.Level
	if level == 0 {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	writers := []io.Writer{os.Stdout}
	if opts.LogPath != "" {
		f, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.WithError(err).WithField("log_path", opts.LogPath).
				Warn("could not open log file, falling back to stdout only")
		} else {
			writers = append(writers, f)
		}
	}
	logger.SetOutput(io.MultiWriter(writers...))
	return logger
}
