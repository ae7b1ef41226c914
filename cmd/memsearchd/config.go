// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/memsearchd/internal/errors"
)

// fileConfig is the optional --config YAML file. Every field is a
// pointer so an absent key leaves the flag/default value untouched —
// precedence is flag > YAML > built-in default.
type fileConfig struct {
	RequestSocket  *string `yaml:"request_socket"`
	ResponsePrefix *string `yaml:"response_prefix"`
	Workers        *int    `yaml:"workers"`
	MaxFileBytes   *int64  `yaml:"max_file_bytes"`
	MaxOutputBytes *int    `yaml:"max_output_bytes"`
	QueryTimeout   *int    `yaml:"query_timeout"`
	LogLevel       *string `yaml:"log_level"`
	MetricsAddr    *string `yaml:"metrics_addr"`
	QueueSize      *int    `yaml:"queue_size"`
	NoColor        *bool   `yaml:"no_color"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is an operator-supplied flag, not untrusted input
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot read configuration file",
			fmt.Sprintf("failed to read %s", path),
			"check the path passed to --config and file permissions",
			err,
		)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigError(
			"Invalid configuration file",
			fmt.Sprintf("failed to parse %s as YAML", path),
			"",
			err,
		)
	}
	return &cfg, nil
}

// daemonFlags is the fully-resolved configuration driving one run of
// the daemon, after flag > YAML > default precedence is applied.
type daemonFlags struct {
	RequestSocket  string
	ResponsePrefix string
	Workers        int
	MaxFileBytes   int64
	MaxOutputBytes int
	QueryTimeout   time.Duration
	LogLevel       string
	MetricsAddr    string
	QueueSize      int
	NoColor        bool
}

// applyFileConfig overlays every value fc supplies onto f, except for
// flags named in changed (those set explicitly on the command line, as
// found by pflag changed-detection), which keep their flag value. A
// YAML value replaces a built-in default even when that default is
// non-zero.
func (f daemonFlags) applyFileConfig(fc *fileConfig, changed map[string]bool) daemonFlags {
	set := func(name string, apply func()) {
		if !changed[name] {
			apply()
		}
	}
	if fc.RequestSocket != nil {
		set("request-socket", func() { f.RequestSocket = *fc.RequestSocket })
	}
	if fc.ResponsePrefix != nil {
		set("response-prefix", func() { f.ResponsePrefix = *fc.ResponsePrefix })
	}
	if fc.Workers != nil {
		set("workers", func() { f.Workers = *fc.Workers })
	}
	if fc.MaxFileBytes != nil {
		set("max-file-bytes", func() { f.MaxFileBytes = *fc.MaxFileBytes })
	}
	if fc.MaxOutputBytes != nil {
		set("max-output-bytes", func() { f.MaxOutputBytes = *fc.MaxOutputBytes })
	}
	if fc.QueryTimeout != nil {
		set("query-timeout", func() { f.QueryTimeout = time.Duration(*fc.QueryTimeout) * time.Second })
	}
	if fc.LogLevel != nil {
		set("log-level", func() { f.LogLevel = *fc.LogLevel })
	}
	if fc.MetricsAddr != nil {
		set("metrics-addr", func() { f.MetricsAddr = *fc.MetricsAddr })
	}
	if fc.QueueSize != nil {
		set("queue-size", func() { f.QueueSize = *fc.QueueSize })
	}
	if fc.NoColor != nil {
		set("no-color", func() { f.NoColor = *fc.NoColor })
	}
	return f
}
