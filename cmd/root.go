// Copyright (c) 2022-present, DiceDB contributors
// All rights reserved. Licensed under the BSD 3-Clause License. See LICENSE file in the project root for full license information.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/sevenDatabase/bucketinit/config"
	"github.com/sevenDatabase/bucketinit/internal/bucketsinit"
	"github.com/sevenDatabase/bucketinit/internal/logging"
	"github.com/sevenDatabase/bucketinit/internal/migration"
	"github.com/sevenDatabase/bucketinit/internal/observability"
	"github.com/sevenDatabase/bucketinit/internal/readiness"
	"github.com/sevenDatabase/bucketinit/internal/storageref"
	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
}

var rootCmd = &cobra.Command{
	Use:   "bucketinit",
	Short: "bucketinit brings a set of indexed, versioned buckets to a desired schema state",
	RunE: func(cmd *cobra.Command, args []string) error {
		config.Load(cmd.Flags())
		setUpLogging()
		return run(cmd.Context())
	},
}

// Execute runs the bucketinit CLI. It is the sole entrypoint cmd/bucketinit
// calls into.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setUpLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(config.Config.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if config.Config.LogTags == "" {
		return
	}
	if config.Config.LogTags == "all" {
		logging.Enable("all")
		return
	}
	logging.EnableMany(config.Config.LogTags)
}

func run(ctx context.Context) error {
	if config.Config.RefStorePath == "" {
		return errors.New("no storage client configured: set --ref-store to a bbolt file path (a live remote client is supplied by the embedding host program, not this CLI)")
	}
	client, err := storageref.Open(config.Config.RefStorePath)
	if err != nil {
		return fmt.Errorf("open reference store: %w", err)
	}
	defer client.Close()

	bucketsCfg, err := config.LoadBucketsConfig(config.Config.BucketsConfigPath)
	if err != nil {
		return err
	}

	var plan migration.Plan
	if config.Config.MigrationsDir != "" {
		// The standalone CLI ships with no compiled-in migration
		// registrations; a host program that owns actual migrate
		// functions embeds bucketsinit directly instead of shelling out
		// to this binary.
		plan, err = migration.LoadPlanFromDir(config.Config.MigrationsDir, nil, bucketsCfg)
		if err != nil {
			return fmt.Errorf("load migration plan: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	metrics := observability.New(reg)
	go serveMetrics(metrics, reg)

	watcher := readiness.NewWatcher()
	grpcSrv := grpc.NewServer()
	watcher.Register(grpcSrv)
	go serveReadiness(grpcSrv)
	defer grpcSrv.GracefulStop()

	initializer, err := bucketsinit.New(bucketsinit.Config{
		BucketsConfig:             bucketsCfg,
		Client:                    client,
		Plan:                      plan,
		MaxBucketsSetupAttempts:   config.Config.MaxBucketsSetupAttempts,
		MaxBucketsReindexAttempts: config.Config.MaxBucketsReindexAttempts,
		MaxDataMigrationsAttempts: config.Config.MaxDataMigrationsAttempts,
		Metrics:                   metrics,
	})
	if err != nil {
		return fmt.Errorf("construct initializer: %w", err)
	}

	go watcher.Watch(ctx, initializer)

	if err := initializer.Start(ctx); err != nil {
		var canceled *storeapi.CanceledError
		if errors.As(err, &canceled) {
			slog.Info("bucket initializer canceled")
			return nil
		}
		return fmt.Errorf("bucket initializer failed: %w", err)
	}
	slog.Info("bucket initializer done")
	return nil
}

func serveMetrics(metrics *observability.Collector, reg prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	if err := http.ListenAndServe(config.Config.MetricsListenAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics http server exited", slog.Any("error", err))
	}
}

func serveReadiness(srv *grpc.Server) {
	lis, err := net.Listen("tcp", config.Config.ReadinessListenAddr)
	if err != nil {
		slog.Error("readiness listener failed", slog.Any("error", err))
		return
	}
	if err := srv.Serve(lis); err != nil {
		slog.Error("readiness grpc server exited", slog.Any("error", err))
	}
}
