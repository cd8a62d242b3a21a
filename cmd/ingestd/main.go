// Command ingestd runs the hazard ingestion core: it polls the configured
// hazard feeds on their intervals, enriches events with risk scores, keeps the
// in-memory state cache fresh, fans payloads out locally and (optionally) to
// Kafka, and serves the dashboard bootstrap endpoint.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/crisislens/hazard-ingest-service/internal/adapter/feeds"
	httpadapter "github.com/crisislens/hazard-ingest-service/internal/adapter/http"
	"github.com/crisislens/hazard-ingest-service/internal/bootstrap"
	"github.com/crisislens/hazard-ingest-service/internal/config"
	"github.com/crisislens/hazard-ingest-service/internal/domain"
	"github.com/crisislens/hazard-ingest-service/internal/fanout"
	"github.com/crisislens/hazard-ingest-service/internal/fixture"
	"github.com/crisislens/hazard-ingest-service/internal/ingest"
	"github.com/crisislens/hazard-ingest-service/internal/observability"
	"github.com/crisislens/hazard-ingest-service/internal/risk"
	"github.com/crisislens/hazard-ingest-service/internal/scheduler"
	"github.com/crisislens/hazard-ingest-service/internal/state"
	"github.com/crisislens/hazard-ingest-service/internal/store/sqlite"
)

func main() {
	// A .env file is a local-dev convenience; deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	var store domain.Store
	var sqlStore *sqlite.Store
	if cfg.StoreEnabled() {
		sqlStore, err = sqlite.Open(cfg.DatabasePath, logger, metrics)
		if err != nil {
			logger.Error("failed to open store", "path", cfg.DatabasePath, "error", err)
			os.Exit(1)
		}
		store = sqlStore
		logger.Info("durable store open", "path", cfg.DatabasePath)
	} else {
		logger.Info("no durable store configured, running in cache/fixture mode")
	}

	cache := state.New(metrics)
	provider := risk.NewRegionProvider(store, fixture.DensityRegions, cache, logger)
	engine := risk.NewEngine(provider)

	bus := fanout.NewBus()
	var emitter *fanout.Emitter
	if cfg.BrokerEnabled() {
		writer := fanout.NewKafkaWriter(cfg.KafkaBrokers)
		emitter = fanout.NewEmitter(bus, writer, cfg.KafkaTopicPrefix, cfg.PublishTimeout, logger, metrics)
		logger.Info("kafka mirroring enabled", "brokers", cfg.KafkaBrokers, "topic_prefix", cfg.KafkaTopicPrefix)
	} else {
		emitter = fanout.NewEmitter(bus, nil, cfg.KafkaTopicPrefix, cfg.PublishTimeout, logger, metrics)
		logger.Info("kafka mirroring disabled, local fan-out only")
	}

	client := feeds.NewClient(logger, metrics)
	runner := ingest.NewRunner(cfg, client, cache, store, engine, emitter, logger, metrics)
	assembler := bootstrap.NewAssembler(cfg, cache, store, engine, client, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, cacheReadiness{cache: cache}, assembler, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var bridgeDone chan struct{}
	if cfg.KafkaBridge {
		bridge := fanout.NewBridge(bus, cfg.KafkaBrokers, cfg.KafkaTopicPrefix, cfg.KafkaGroupID, logger, metrics)
		bridgeDone = make(chan struct{})
		go func() {
			bridge.Run(ctx)
			close(bridgeDone)
		}()
		logger.Info("kafka bridge enabled", "group_id", cfg.KafkaGroupID)
	}

	sched := scheduler.New(nil, logger, metrics)
	sched.Add(scheduler.Job{Name: "usgs", Interval: cfg.USGS.Interval, Run: runner.CycleUSGS})
	sched.Add(scheduler.Job{Name: "nasa_firms", Interval: cfg.NASA.Interval, Run: runner.CycleNASA})
	sched.Add(scheduler.Job{Name: "fema", Interval: cfg.FEMA.Interval, Run: runner.CycleFEMA})
	sched.Add(scheduler.Job{Name: "sffd", Interval: cfg.SFFD.Interval, Run: runner.CycleSFFD})
	sched.Add(scheduler.Job{Name: "social", Interval: cfg.Social.Interval, Run: runner.CycleSocial})
	sched.Add(scheduler.Job{Name: "kontur", Interval: cfg.Kontur.Interval, Run: runner.CycleKontur})
	sched.Add(scheduler.Job{Name: "census", Interval: cfg.Census.Interval, Run: runner.CycleCensus})
	sched.Add(scheduler.Job{Name: "predictions", Interval: cfg.PredictionsInterval, Run: runner.CyclePredictions})
	sched.Start(ctx)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sched.Wait()
	if err := emitter.Close(shutdownCtx); err != nil {
		logger.Error("emitter close error", "error", err)
	}
	if bridgeDone != nil {
		<-bridgeDone
	}
	if sqlStore != nil {
		if err := sqlStore.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// cacheReadiness reports ready once the first feed cycle has populated the
// event cache. Probes before that get a 503 so load balancers hold traffic
// until a snapshot exists.
type cacheReadiness struct {
	cache *state.Cache
}

func (r cacheReadiness) CheckReadiness(context.Context) error {
	if len(r.cache.Events()) == 0 {
		return errors.New("event cache is cold")
	}
	return nil
}
