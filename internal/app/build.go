package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/depthwise/depthwise/internal/config"
	"github.com/depthwise/depthwise/internal/engine"
	"github.com/depthwise/depthwise/internal/extract"
	"github.com/depthwise/depthwise/internal/httpapi"
	"github.com/depthwise/depthwise/internal/interview"
	"github.com/depthwise/depthwise/internal/lock"
	"github.com/depthwise/depthwise/internal/observability"
	"github.com/depthwise/depthwise/internal/session"
	"github.com/depthwise/depthwise/internal/store"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Engine   *engine.Service
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release external resources
	// (DB pool, redis client).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	sessionStore, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("session store init failed: %w", err)
	}

	locks, err := lock.New(cfg.RedisAddr, cfg.RedisLockTTL)
	if err != nil {
		_ = sessionStore.Close()
		return nil, fmt.Errorf("session locker init failed: %w", err)
	}

	topics, skills, err := extract.New(ctx, extract.Config{
		Mode:   cfg.ExtractorMode,
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	})
	if err != nil {
		_ = locks.Close()
		_ = sessionStore.Close()
		return nil, fmt.Errorf("extractor init failed: %w", err)
	}

	analyzer := interview.NewAnalyzer(topics, skills, cfg.ExtractorTimeout, log)
	analyzer.SetFailureHook(func(extractor string) {
		metrics.ExtractorFailures.WithLabelValues(extractor).Inc()
	})

	eng, err := engine.New(engine.Config{
		ProbeLimit: cfg.ProbeLimit,
		Weights: interview.Weights{
			Engagement: cfg.WeightEngagement,
			Confidence: cfg.WeightConfidence,
			Length:     cfg.WeightLength,
			Novelty:    cfg.WeightNovelty,
		},
		DefaultRootTopic: cfg.DefaultRootTopic,
	}, sessionStore, locks, analyzer, metrics, log)
	if err != nil {
		_ = locks.Close()
		_ = sessionStore.Close()
		return nil, err
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		if _, err := eng.EndSession(context.Background(), s.ID); err != nil {
			log.Warn("expire hook could not end session", zap.String("session_id", s.ID), zap.Error(err))
		}
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	api := httpapi.New(cfg, sessions, eng, metrics, log)

	cleanup := func() error {
		var errs []string
		if err := locks.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := sessionStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Engine:   eng,
		Metrics:  metrics,
		Cleanup:  cleanup,
	}, nil
}
