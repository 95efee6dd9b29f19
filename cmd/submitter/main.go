package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"document-submitter/documents"
	"document-submitter/documents/infra"
	"document-submitter/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := readConfig()
	if err != nil {
		log.Printf("config error: %v", err)
		return 2
	}

	logger := logging.New(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logging.WithContext(ctx, logger)

	doc, signature, err := loadDocument(cfg)
	if err != nil {
		logger.Error("load document", "error", err)
		return 2
	}

	opts := []documents.Option{
		documents.WithEndpoint(cfg.Endpoint),
		documents.WithTimeout(cfg.Timeout),
		documents.WithAuthToken(cfg.Token),
		documents.WithLogger(logger),
	}

	if cfg.PaceRPS > 0 || len(cfg.PaceGroups) > 0 {
		pacerOpts := make([]infra.PacerOption, 0, len(cfg.PaceGroups))
		for group, r := range cfg.PaceGroups {
			pacerOpts = append(pacerOpts, infra.WithGroupRate(group, r))
		}
		// PACE_RPS=0 com PACE_GROUPS: só os grupos listados são espaçados
		pacer := infra.NewPacerStore(cfg.PaceRPS, cfg.PaceBurst, pacerOpts...)
		pacer.StartJanitor(ctx)
		opts = append(opts, documents.WithPacer(pacer))
	}

	if cfg.StatsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.StatsRedisAddr,
			Password: cfg.StatsRedisPassword,
			DB:       cfg.StatsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			logger.Error("redis stats ping error", "error", err)
			return 1
		}

		opts = append(opts, documents.WithStats(infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.StatsPrefix),
			infra.WithStatsTTL(cfg.StatsTTL),
			infra.WithStatsBucket(cfg.StatsBucket),
			infra.WithStatsTrackGroups(cfg.StatsTrackGroups),
		)))
	}

	if cfg.MetricsAddr != "" {
		opts = append(opts, documents.WithMetricsRegisterer(prometheus.DefaultRegisterer))
		stop := serveMetrics(ctx, cfg.MetricsAddr)
		defer stop()
	}

	client, err := documents.New(cfg.Period, cfg.Limit, opts...)
	if err != nil {
		logger.Error("create documents client", "error", err)
		return 1
	}
	defer func() { _ = client.Close() }()

	logger.Info("submitting",
		"endpoint", cfg.Endpoint,
		"count", cfg.SubmitCount,
		"limit", cfg.Limit,
		"period", cfg.Period,
		"pace_rps", cfg.PaceRPS,
		"pace_groups", len(cfg.PaceGroups),
		"stats", cfg.StatsEnabled,
	)

	if failed := submitAll(ctx, client, doc, signature, cfg.SubmitCount); failed > 0 {
		return 1
	}
	return 0
}

func loadDocument(cfg config) (*documents.Document, string, error) {
	payload, err := os.ReadFile(cfg.DocumentFile)
	if err != nil {
		return nil, "", err
	}

	signature := cfg.Signature
	if cfg.SignatureFile != "" {
		b, err := os.ReadFile(cfg.SignatureFile)
		if err != nil {
			return nil, "", err
		}
		signature = strings.TrimSpace(string(b))
	}

	return &documents.Document{
		Format:       cfg.Format,
		Type:         cfg.DocumentType,
		ProductGroup: cfg.ProductGroup,
		Payload:      payload,
	}, signature, nil
}

// submitAll dispara count envios concorrentes do mesmo documento e devolve quantos falharam.
func submitAll(ctx context.Context, client *documents.Client, doc *documents.Document, signature string, count int) int {
	logger := logging.FromContext(ctx)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		byKind = make(map[string]int)
	)
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.CreateDocument(ctx, doc, signature)
			if err == nil {
				return
			}
			mu.Lock()
			byKind[documents.KindOf(err).String()]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	failed := 0
	for _, n := range byKind {
		failed += n
	}
	logger.Info("done", "submitted", count, "failed", failed, "failures_by_kind", byKind)
	return failed
}

func serveMetrics(ctx context.Context, addr string) func() {
	logger := logging.FromContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
