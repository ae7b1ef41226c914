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

// Package main implements memsearchd, the in-memory code search daemon.
//
// Usage:
//
//	memsearchd [flags]
//
// memsearchd binds no working directory of its own; clients allocate a
// tenant over the request socket, naming the codebase root to map.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/memsearchd/internal/errors"
	"github.com/kraklabs/memsearchd/internal/metrics"
	"github.com/kraklabs/memsearchd/internal/ui"
	"github.com/kraklabs/memsearchd/pkg/cache"
	"github.com/kraklabs/memsearchd/pkg/ipc"
	"github.com/kraklabs/memsearchd/pkg/search"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		requestSocket  = flag.String("request-socket", "/tmp/mem_search_service_requests.sock", "Path to the request socket")
		responsePrefix = flag.String("response-prefix", "/tmp/mem_search_service", "Prefix for per-tenant response socket paths")
		workers        = flag.Int("workers", 0, "Worker pool size (default: CPU cores, minimum 2)")
		maxFileBytes   = flag.Int64("max-file-bytes", cache.MaxFileBytes, "Per-file size ceiling for the codebase cache")
		maxOutputBytes = flag.Int("max-output-bytes", search.DefaultLimits.MaxOutputBytes, "Per-query serialized output ceiling")
		queryTimeout   = flag.Int("query-timeout", int(search.DefaultLimits.Timeout.Seconds()), "Per-query wall-clock deadline, in seconds")
		logLevel       = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		configPath     = flag.String("config", "", "Path to an optional YAML configuration file")
		metricsAddr    = flag.String("metrics-addr", "", "Address for the optional Prometheus metrics listener (empty disables it)")
		noColor        = flag.Bool("no-color", false, "Disable color output in the startup banner")
		queueSize      = flag.Int("queue-size", 4096, "Bounded request queue size")
		showVersion    = flag.BoolP("version", "V", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("memsearchd version %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		os.Exit(0)
	}

	flags := daemonFlags{
		RequestSocket:  *requestSocket,
		ResponsePrefix: *responsePrefix,
		Workers:        *workers,
		MaxFileBytes:   *maxFileBytes,
		MaxOutputBytes: *maxOutputBytes,
		QueryTimeout:   time.Duration(*queryTimeout) * time.Second,
		LogLevel:       *logLevel,
		MetricsAddr:    *metricsAddr,
		QueueSize:      *queueSize,
		NoColor:        *noColor,
	}

	if *configPath != "" {
		fc, err := loadFileConfig(*configPath)
		if err != nil {
			errors.FatalError(err, ui.Enabled)
		}
		changed := map[string]bool{}
		flag.CommandLine.Visit(func(f *flag.Flag) { changed[f.Name] = true })
		flags = flags.applyFileConfig(fc, changed)
	}

	ui.InitColors(flags.NoColor)

	log, err := newLogger(flags.LogLevel)
	if err != nil {
		errors.FatalError(err, ui.Enabled)
	}
	slog.SetDefault(log)

	fmt.Fprintln(os.Stderr, ui.Bold("memsearchd")+" "+version+" starting")
	log.Info("configuration resolved",
		"request_socket", flags.RequestSocket,
		"response_prefix", flags.ResponsePrefix,
		"workers", flags.Workers,
		"queue_size", flags.QueueSize,
		"max_file_bytes", flags.MaxFileBytes,
		"max_output_bytes", flags.MaxOutputBytes,
		"query_timeout", flags.QueryTimeout,
	)

	var reg *metrics.Registry
	if flags.MetricsAddr != "" {
		reg = metrics.New()
		metricsSrv := &http.Server{Addr: flags.MetricsAddr, Handler: reg.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("metrics listener starting", "addr", flags.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics listener failed", "err", err)
			}
		}()
	}

	cfg := ipc.Config{
		RequestSocketPath: flags.RequestSocket,
		ResponsePrefix:    flags.ResponsePrefix,
		Workers:           flags.Workers,
		QueueSize:         flags.QueueSize,
		CacheOptions: cache.BuildOptions{
			MaxFileBytes: flags.MaxFileBytes,
			Logger:       log,
			ShowProgress: isatty.IsTerminal(os.Stderr.Fd()),
		},
		SearchLimits: search.Limits{
			MaxOutputBytes: flags.MaxOutputBytes,
			Timeout:        flags.QueryTimeout,
		},
		Logger: log,
	}
	if reg != nil {
		cfg.Metrics = reg
	}

	srv := ipc.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	log.Info("listening", "request_socket", flags.RequestSocket)
	if err := srv.Serve(ctx); err != nil {
		errors.FatalError(errors.NewConfigError(
			"Failed to start the IPC server",
			err.Error(),
			"check that the request socket path is writable and not already bound",
			err,
		), ui.Enabled)
	}
	log.Info("clean shutdown complete")
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.NewConfigError(
			"Invalid log level",
			fmt.Sprintf("%q is not one of debug, info, warn, error", level),
			"",
			err,
		)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler), nil
}
