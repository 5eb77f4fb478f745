// Команда calltracker принимает SIP звонки, ведет их реестр и рассылает
// события звонков websocket клиентам.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emiago/sipgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/arzzra/call_tracker/pkg/config"
	"github.com/arzzra/call_tracker/pkg/eventsink"
	"github.com/arzzra/call_tracker/pkg/sipcall"
	"github.com/arzzra/call_tracker/pkg/telecom"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка создания логгера: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("calltracker остановлен с ошибкой", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("calltracker остановлен")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := telecom.NewCallRegistry()

	anchor := telecom.NewAnchor(
		telecom.WithActivateHook(func(owner string) {
			logger.Info("anchor activated", slog.String("owner", owner))
		}),
		telecom.WithReleaseHook(func(owner string) {
			logger.Info("anchor released", slog.String("owner", owner))
		}),
	)

	routerOpts := []telecom.RouterOption{
		telecom.WithAnchor(anchor),
		telecom.WithLogger(logger),
	}

	promRegistry := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		metrics, err := telecom.NewMetrics(&telecom.MetricsConfig{
			Namespace:  cfg.Metrics.Namespace,
			Subsystem:  "tracker",
			Registerer: promRegistry,
		})
		if err != nil {
			return fmt.Errorf("ошибка регистрации метрик: %w", err)
		}
		routerOpts = append(routerOpts, telecom.WithMetrics(metrics))
	}

	hub := eventsink.NewHub(
		eventsink.WithClientBuffer(cfg.Events.ClientBuffer),
		eventsink.WithHubLogger(logger),
	)
	sink := eventsink.NewMulti(hub, eventsink.NewLogSink(logger, slog.LevelDebug))
	routerOpts = append(routerOpts, telecom.WithEventSink(sink))

	router := telecom.NewCallEventRouter(registry, routerOpts...)
	defer router.Shutdown()

	facade := telecom.NewSessionFacade(registry, telecom.WithFacadeLogger(logger))

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent(cfg.SIP.UserAgent),
		sipgo.WithUserAgentHostname(cfg.SIP.Hostname),
	)
	if err != nil {
		return fmt.Errorf("ошибка создания User Agent: %w", err)
	}
	defer ua.Close()

	client, err := sipgo.NewClient(ua, sipgo.WithClientHostname(cfg.SIP.Hostname))
	if err != nil {
		return fmt.Errorf("ошибка создания клиента: %w", err)
	}
	server, err := sipgo.NewServer(ua)
	if err != nil {
		return fmt.Errorf("ошибка создания сервера: %w", err)
	}

	svc := sipcall.NewService(cfg, sipcall.NewClientTransport(client), router, sipcall.WithLogger(logger))
	svc.Register(server)

	mux := http.NewServeMux()
	mux.Handle(cfg.Events.Path, hub)
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}
	newControlAPI(facade, router, logger).register(mux)

	httpServer := &http.Server{
		Addr:              cfg.Events.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("SIP сервер запущен",
			slog.String("network", cfg.SIP.Network),
			slog.String("addr", cfg.SIP.ListenAddr))
		err := server.ListenAndServe(ctx, cfg.SIP.Network, cfg.SIP.ListenAddr)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("SIP сервер: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("HTTP сервер запущен",
			slog.String("addr", cfg.Events.ListenAddr),
			slog.String("events", cfg.Events.Path))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP сервер: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("остановка calltracker")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := svc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("завершение звонков: %w", err))
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("остановка HTTP: %w", err))
		}
		if err := hub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("закрытие hub: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
