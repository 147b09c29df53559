package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/buildtall-systems/vinopack/internal/coordinator"
	"github.com/buildtall-systems/vinopack/internal/db"
	"github.com/buildtall-systems/vinopack/internal/httpapi"
	"github.com/buildtall-systems/vinopack/internal/ingest"
	"github.com/buildtall-systems/vinopack/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the vinopack service",
	Long:  `Start the HTTP API and the fulfillment coordinator. Connects to the configured pub/sub backend and listens for counter and robot feedback.`,
	RunE:  runService,
}

func init() {
	runCmd.Flags().String("addr", "", "HTTP listen address")
	_ = viper.BindPFlag("http.addr", runCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(runCmd)
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().
		Str("addr", cfg.HTTP.Addr).
		Str("database", cfg.Database.Path).
		Str("transport", cfg.Transport.Backend).
		Msg("vinopack starting")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = database.Close() }()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info().Msg("database ready")

	transport, err := openTransport(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = transport.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	coord := coordinator.New(
		coordinator.NewTracker(cfg.Coordinator.MaxTracked, cfg.Coordinator.IdleTimeout),
		database,
		coordinator.Channels{
			Premium:      cfg.Channels.Premium,
			Standard:     cfg.Channels.Standard,
			RobotCommand: cfg.Channels.RobotCommand,
			RobotStatus:  cfg.Channels.RobotStatus,
		},
		m,
	)

	feedback, err := transport.Subscribe(ctx, coord.Inbound()...)
	if err != nil {
		return fmt.Errorf("subscribing to feedback: %w", err)
	}

	svc := ingest.NewService(database, coord, transport, ingest.Channels{
		Premium:  cfg.Channels.Premium,
		Standard: cfg.Channels.Standard,
	}, m)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewServer(svc, database, transport, reg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return coord.Run(gctx, feedback)
	})

	g.Go(func() error {
		return coord.RunSweeper(gctx, cfg.Coordinator.SweepInterval)
	})

	log.Info().Msg("vinopack running, waiting for orders")

	err = g.Wait()
	log.Info().Msg("shutting down")
	return err
}
