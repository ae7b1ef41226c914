// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers: 4
queue_size: 512
log_level: debug
`), 0o644))

	fc, err := loadFileConfig(path)
	require.NoError(t, err)
	require.Equal(t, 4, *fc.Workers)
	require.Equal(t, 512, *fc.QueueSize)
	require.Equal(t, "debug", *fc.LogLevel)
	require.Nil(t, fc.MetricsAddr)
}

func TestLoadFileConfigMissingFile(t *testing.T) {
	_, err := loadFileConfig("/nonexistent/path.yaml")
	require.Error(t, err)
}

func TestApplyFileConfigRespectsExplicitFlags(t *testing.T) {
	base := daemonFlags{Workers: 2, QueueSize: 4096, QueryTimeout: 30 * time.Second}
	four := 4
	eight := 8
	fc := &fileConfig{Workers: &four, QueueSize: &eight}

	merged := base.applyFileConfig(fc, map[string]bool{"workers": true})
	require.Equal(t, 2, merged.Workers) // explicit flag wins
	require.Equal(t, 8, merged.QueueSize) // YAML fills the unset flag
}

func TestNewLoggerRejectsInvalidLevel(t *testing.T) {
	_, err := newLogger("not-a-level")
	require.Error(t, err)
}

func TestNewLoggerAcceptsKnownLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		l, err := newLogger(lvl)
		require.NoError(t, err)
		require.NotNil(t, l)
	}
}
