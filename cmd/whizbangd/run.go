package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/krew-solutions/whizbang-go/client"
	"github.com/krew-solutions/whizbang-go/coordinator"
	"github.com/krew-solutions/whizbang-go/eventstore"
	"github.com/krew-solutions/whizbang-go/ids"
	wmetrics "github.com/krew-solutions/whizbang-go/metrics"
	"github.com/krew-solutions/whizbang-go/perspective"
	"github.com/krew-solutions/whizbang-go/receptor"
	pgsession "github.com/krew-solutions/whizbang-go/session/pg"
)

type clientHost struct {
	client *client.Client
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the example host: coordinator client plus demo receptor/perspective runners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context(), v)
		},
	}
}

func runHost(ctx context.Context, v *viper.Viper) error {
	cfg := loadConfig(v)
	log := newLogger(cfg.logLevel)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.dbURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	sessionPool := pgsession.NewSessionPool(pool)
	coord := coordinator.NewCoordinator(sessionPool)
	if err := coord.Setup(ctx); err != nil {
		return err
	}

	identity := coordinator.Identity{
		InstanceId:  ids.NewInstanceId(),
		ServiceName: cfg.serviceName,
		HostName:    hostnameOrUnknown(),
		ProcessId:   os.Getpid(),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(wmetrics.Collectors()...)

	c := client.NewClient(coord, identity, cfg.workCfg, client.DefaultConfig(), log)
	host := &clientHost{client: c}

	m := newDemoMediator(log)
	registerDemoHandlers(host, m, log)

	c.Hooks.OnFlushEnded.Attach(func(ev client.FlushEnded) {
		if ev.Err != nil {
			log.WithError(ev.Err).Warn("whizbangd: flush failed")
			return
		}
		if ev.Batch != nil {
			log.WithFields(logrus.Fields{
				"outbox": len(ev.Batch.OutboxWork),
				"inbox":  len(ev.Batch.InboxWork),
			}).Debug("whizbangd: flush dispatched work")
		}
	})

	store := eventstore.NewStore(sessionPool, "", nil)
	receptorRunner := receptor.NewRunner(coord, store, identity, cfg.workCfg, []receptor.Registration{
		{Name: "demo-logger", Handler: func(_ context.Context, ev eventstore.Event) error {
			log.WithField("event_type", ev.EventType).Debug("whizbangd: demo receptor observed event")
			return nil
		}},
	})
	perspectiveRunner := perspective.NewRunner(coord, store, identity, cfg.workCfg, []perspective.Registration{
		{Name: "demo-projection", Projector: func(_ context.Context, ev eventstore.Event) error {
			log.WithField("stream_id", ev.StreamId.String()).Debug("whizbangd: demo perspective projected event")
			return nil
		}},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(gctx) })
	g.Go(func() error { return receptorRunner.Run(gctx) })
	g.Go(func() error { return perspectiveRunner.Run(gctx) })

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.metricsAddr, Handler: mux}
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return metricsServer.Close()
	})

	if cfg.debugRetention > 0 {
		go runDebugCollector(gctx, coord, cfg, log)
	}

	log.WithField("service", cfg.serviceName).Info("whizbangd: running")
	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}

func hostnameOrUnknown() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
