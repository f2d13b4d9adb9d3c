package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/merge"
	"github.com/Ramsey-B/clover/pkg/routes/user"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the merge API and consume merge commands",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, func(ctx context.Context, a *app) error {
		container, err := a.newContainer()
		if err != nil {
			return err
		}
		checker := newChecker(a)
		e := newServer(a, checker, container.GetContainerID())

		var consumer *kafka.Consumer
		if a.cfg.KafkaConsumerEnabled {
			proc := processor.New(a.service, a.logger, a.cfg.MergeDefaultForward)
			consumer = kafka.NewConsumer(a.cfg.Consumer(), a.logger, proc.Handle)
			if err := consumer.Start(ctx); err != nil {
				return err
			}
			defer func() {
				if err := consumer.Stop(); err != nil {
					a.logger.WithError(err).Warn("Failed to stop Kafka consumer")
				}
			}()
			checker.AddCheck("kafka_consumer", func(context.Context) error {
				if !consumer.Health() {
					return fmt.Errorf("consumer is not running")
				}
				return nil
			})
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Port),
			Handler:           e,
			ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
			WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
			IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
			ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
			MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Infof("Listening on %s", srv.Addr)
			if err := e.StartServer(srv); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()
		checker.SetReady(true)

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		checker.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.logger.Info("Shutting down HTTP server")
		return e.Shutdown(shutdownCtx)
	})
}

func newChecker(a *app) *health.Checker {
	checker := health.NewChecker(a.cfg.Version)
	checker.AddCheck("postgres", a.db.PingContext)
	if a.redis != nil {
		checker.AddCheck("redis", a.redis.Ping)
	}
	if a.graph != nil {
		checker.AddCheck("graph", a.graph.VerifyConnectivity)
	}
	return checker
}

func newServer(a *app, checker *health.Checker, containerID string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Container(containerID))
	e.Use(middleware.Logger(a.logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	health.Register(e.Group(""), checker)

	v1 := e.Group("/api/v1")
	merge.Register(v1, merge.NewHandler(a.cfg.MergeDefaultForward))
	user.Register(v1)

	return e
}
