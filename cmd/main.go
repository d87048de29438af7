package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"ringracers-battle-alert/config"
	"ringracers-battle-alert/directory"
	"ringracers-battle-alert/discovery"
	"ringracers-battle-alert/health"
	"ringracers-battle-alert/metrics"
	"ringracers-battle-alert/probe"
	"ringracers-battle-alert/queues"
	qpubsub "ringracers-battle-alert/queues/pubsub"
	"ringracers-battle-alert/watcher"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var version = "source"

func setLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if os.Getenv("DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func main() {
	setLogger(os.Getenv("BATTLE_ALERT_LOG_LEVEL"))
	log.Info().Msgf("Starting ringracers-battle-alert version: %s", version)
	cfg := config.Load()
	log.Info().Interface("config", cfg.Redacted()).Msg("config loaded")

	// Preflight: bad limits never start a job
	limits, limitsErr := cfg.Limits()
	if cfg.RequestSubscription == "" && limitsErr != nil {
		log.Fatal().Err(limitsErr).Msg("invalid limits; set BATTLE_ALERT_MIN_PLAYERS and BATTLE_ALERT_MAX_TIC_DELAY to non-negative integers")
	}
	if cfg.PubsubEnabled() && cfg.GoogleProjectID == "" {
		log.Fatal().Msg("missing Google project id; set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_PROJECT_ID or BATTLE_ALERT_PUBSUB_PROJECT_ID")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var active atomic.Pointer[discovery.Job]

	// Metrics, health and status HTTP server
	mux := http.NewServeMux()
	metrics.Register(mux)
	health.Register(mux, func() (discovery.Snapshot, bool) {
		j := active.Load()
		if j == nil {
			return discovery.Snapshot{}, false
		}
		return j.Snapshot(), true
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var publisher queues.Publisher
	if cfg.ResultTopic != "" {
		p := qpubsub.NewPublisher(cfg.GoogleProjectID, cfg.ResultTopic, cfg.CredentialsFile)
		defer p.Close()
		publisher = p
		log.Info().Str("topic", cfg.ResultTopic).Msg("alerts will be published to Pub/Sub")
	}
	w := watcher.New(publisher, watcher.DefaultInterval)
	opts := discovery.Options{
		Fetcher:       directory.NewClient(cfg.DirectoryURL, directory.DefaultTimeout),
		Prober:        probe.NewUDPProber(cfg.ProbeTimeout),
		FetchInterval: cfg.FetchInterval,
		PollInterval:  cfg.PollInterval,
		RequireMatch:  cfg.RequireMatch,
	}

	runJob := func(ctx context.Context, limits discovery.Limits, requestID string) error {
		job, err := discovery.Start(limits, opts)
		if err != nil {
			return err
		}
		active.Store(job)
		_, err = w.Watch(ctx, job, requestID)

		// Watch cancels the job when ctx ends; give it the probe timeout to stop
		waitCtx, cancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout+time.Second)
		defer cancel()
		if werr := job.Wait(waitCtx); werr != nil {
			log.Warn().Str("jobId", job.ID()).Msg("job did not stop in time")
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr()).Msg("starting metrics/health server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http server graceful shutdown failed")
		}
		return nil
	})
	g.Go(func() error {
		if cfg.RequestSubscription != "" {
			subscriber := qpubsub.NewSubscriber(cfg.GoogleProjectID, cfg.RequestSubscription, cfg.CredentialsFile)
			defer subscriber.Close()
			log.Info().Str("subscription", cfg.RequestSubscription).Msg("starting subscriber loop")
			return subscriber.Start(gctx, func(ctx context.Context, req *queues.WatchRequest) error {
				return runJob(ctx, discovery.Limits{MinimumPlayers: *req.MinimumPlayers, MaximumTicDelay: *req.MaximumTicDelay}, req.RequestID)
			})
		}

		// One-shot: a finished job ends the process
		defer stop()
		err := runJob(gctx, limits, "")
		if errors.Is(err, context.Canceled) || errors.Is(err, watcher.ErrCancelled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("exited with fatal error")
	}
	log.Info().Msg("shutdown complete")
}
