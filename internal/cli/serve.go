package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/WilliamDuke02/databaseProject/pkg/database"
	"github.com/WilliamDuke02/databaseProject/pkg/keys"
	"github.com/WilliamDuke02/databaseProject/pkg/kafka"
	"github.com/WilliamDuke02/databaseProject/pkg/middleware"
	"github.com/WilliamDuke02/databaseProject/pkg/pipeline"
	"github.com/WilliamDuke02/databaseProject/pkg/recordstore"
	"github.com/WilliamDuke02/databaseProject/pkg/routes/health"
	"github.com/WilliamDuke02/databaseProject/pkg/routes/reconcile"
	"github.com/WilliamDuke02/databaseProject/pkg/routes/records"
	"github.com/WilliamDuke02/databaseProject/pkg/startup"
)

const startupAttempts = 5

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the record store and reconciliation API over HTTP.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().Int("port", 0, "Port to listen on.")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	var (
		conn     database.DB
		producer *kafka.Producer
		checker  *health.Checker
	)
	e := a.newEcho()
	errCh := make(chan error, 1)

	opts, err := a.pipelineOptions()
	if err != nil {
		return err
	}

	s := startup.New(a.logger, startupAttempts, time.Second)
	s.Add(startup.Dependency{
		Name: "database",
		Start: func(ctx context.Context) error {
			if conn != nil {
				return a.migrations().Migrate(conn)
			}
			var err error
			if conn, err = a.openDB(ctx); err != nil {
				return err
			}
			return a.migrations().Migrate(conn)
		},
		Stop: func(context.Context) error {
			return conn.Close()
		},
	})
	if a.cfg.Kafka.Enabled {
		s.Add(startup.Dependency{
			Name: "kafka",
			Start: func(ctx context.Context) error {
				if producer == nil {
					producer = a.producer()
				}
				return producer.Ping(ctx)
			},
			Stop: func(context.Context) error {
				return producer.Close()
			},
		})
	}
	s.Add(startup.Dependency{
		Name:      "http",
		DependsOn: a.httpDependsOn(),
		Start: func(context.Context) error {
			checker = a.registerRoutes(e, conn, producer, opts)
			srv := &http.Server{
				Addr:         a.cfg.HTTP.Address(),
				ReadTimeout:  a.cfg.HTTP.ReadTimeout,
				WriteTimeout: a.cfg.HTTP.WriteTimeout,
			}
			go func() {
				if err := e.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			checker.SetReady(true)
			a.logger.WithField("address", srv.Addr).Info("http server listening")
			return nil
		},
		Stop: func(ctx context.Context) error {
			checker.SetReady(false)
			return e.Shutdown(ctx)
		},
	})

	if err := s.Start(ctx); err != nil {
		_ = s.Stop(context.Background())
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		a.logger.WithError(serveErr).Error("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := s.Stop(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

func (a *app) httpDependsOn() []string {
	if a.cfg.Kafka.Enabled {
		return []string{"database", "kafka"}
	}
	return []string{"database"}
}

func (a *app) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)
	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(a.cfg.App.Name))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))
	return e
}

func (a *app) registerRoutes(e *echo.Echo, conn database.DB, producer *kafka.Producer, opts pipeline.Options) *health.Checker {
	emitter := a.emitter(producer)
	store := recordstore.NewStore(conn, a.logger, recordstore.WithEmitter(emitter))
	p := pipeline.New(conn, a.migrations(), keys.NewDeriver(a.cfg.Pipeline.CheckOffset), a.logger,
		pipeline.WithLoader(a.loader(conn)),
		pipeline.WithEmitter(emitter),
	)
	checker := health.NewChecker(conn, Version)

	v1 := e.Group("/api/v1")
	checker.Register(v1.Group("/health"))
	records.NewHandler(store).Register(v1.Group("/tables"))
	reconcile.NewHandler(p, opts).Register(v1.Group("/reconcile"))

	if a.cfg.Metrics.Enabled {
		e.GET(a.cfg.Metrics.Path, echo.WrapHandler(promhttp.Handler()))
	}
	return checker
}
