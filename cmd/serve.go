package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/raiox/internal/api"
	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/config"
	"github.com/sells-group/raiox/internal/diagnostic"
	"github.com/sells-group/raiox/internal/monitoring"
	"github.com/sells-group/raiox/internal/plan"
	"github.com/sells-group/raiox/internal/snapshot"
	"github.com/sells-group/raiox/internal/store"
)

var (
	servePort        int
	serveSkipMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the diagnostic HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		catalogs, err := catalog.NewProvider(cfg.Catalog.Path)
		if err != nil {
			return eris.Wrap(err, "load catalog")
		}

		st, err := openStore(ctx, cfg.Store, cfg.Retry)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if !serveSkipMigrate {
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newAPIHandler(st, catalogs, alerter, cfg),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		return runServer(ctx, srv, monitoring.NewChecker(st, alerter, time.Minute), shutdownTimeout(cfg.Server))
	},
}

// newAPIHandler wires the services on top of st.
func newAPIHandler(st store.Store, catalogs *catalog.Provider, alerter *monitoring.Alerter, c *config.Config) http.Handler {
	audit := monitoring.NewAuditor(st, alerter)
	snaps := snapshot.New(st, catalogs)
	return api.NewRouter(api.Deps{
		Diagnostic: diagnostic.New(st, catalogs, snaps, audit),
		Plan:       plan.New(st, catalogs, snaps, audit, c.Plan),
		Snapshots:  snaps,
		Catalogs:   catalogs,
		Audit:      audit,
		Pinger:     st,
	}, c.Server)
}

// runServer serves until ctx is done, then drains in-flight requests for at
// most timeout.
func runServer(ctx context.Context, srv *http.Server, checker *monitoring.Checker, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	})

	if checker != nil {
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})
	}

	return g.Wait()
}

func shutdownTimeout(c config.ServerConfig) time.Duration {
	if c.ShutdownTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveSkipMigrate, "skip-migrate", false, "do not apply the schema on startup")
	rootCmd.AddCommand(serveCmd)
}
