package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamnote/streamnote/internal/config"
	"github.com/streamnote/streamnote/internal/engine"
	"github.com/streamnote/streamnote/internal/gdrive"
	"github.com/streamnote/streamnote/internal/llm"
	"github.com/streamnote/streamnote/internal/metrics"
	"github.com/streamnote/streamnote/internal/server"
	"github.com/streamnote/streamnote/internal/session"
	"github.com/streamnote/streamnote/internal/storage"
	"github.com/streamnote/streamnote/internal/summary"
)

func main() {
	log.Println("streamnote: starting")

	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	var dialer engine.Dialer
	if cfg.DeepgramAPIKey != "" {
		dialer = engine.NewDeepgramDialer(cfg.DeepgramAPIKey, cfg.DeepgramModel)
	} else {
		log.Println("warning: no transcription engine configured, sessions will degrade immediately")
		dialer = engine.NewDeepgramDialer("", cfg.DeepgramModel)
	}

	var summarizer session.Summarizer
	if s, err := summary.New(cfg.SummaryModel, llm.Keys{
		OpenAI:    cfg.OpenAIAPIKey,
		Anthropic: cfg.AnthropicAPIKey,
		Gemini:    cfg.GeminiAPIKey,
	}); err != nil {
		log.Printf("warning: summaries disabled: %v", err)
	} else {
		summarizer = s
	}

	tun := session.Tunables{
		FrameDuration:     config.ParseDurationOr(cfg.FrameDuration, 100*time.Millisecond),
		QueueDuration:     config.ParseDurationOr(cfg.QueueDuration, 2*time.Second),
		SilenceTimeout:    config.ParseDurationOr(cfg.SilenceTimeout, 3*time.Second),
		StreamMaxDuration: config.ParseDurationOr(cfg.StreamMaxDuration, 5*time.Minute),
		RetryLimit:        cfg.RetryLimit,
		BackoffBase:       config.ParseDurationOr(cfg.BackoffBase, 250*time.Millisecond),
		BackoffCap:        config.ParseDurationOr(cfg.BackoffCap, 8*time.Second),
		DegradedBuffer:    config.ParseDurationOr(cfg.DegradedBuffer, 30*time.Second),
		DrainTimeout:      config.ParseDurationOr(cfg.DrainTimeout, 5*time.Second),
	}

	registry := session.NewRegistry(ctx, dialer, summarizer, store, tun, cfg.MaxSessions)

	sessionDefaults := session.Config{
		SampleRate:      cfg.SampleRate,
		Language:        cfg.Language,
		SummaryInterval: config.ParseDurationOr(cfg.SummaryInterval, 30*time.Second),
	}

	m := metrics.New()
	dispatcher := server.NewDispatcher(m)
	srv := server.New(registry, dispatcher, store, m, sessionDefaults)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: srv.Handler()}
	go func() {
		log.Printf("streamnote: listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	if cfg.GDriveFolderID != "" {
		syncer, syncErr := gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if syncErr != nil {
			log.Printf("warning: gdrive sync disabled: %v", syncErr)
		} else {
			go syncer.Run(ctx, cfg.DBPath, 5*time.Minute)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("streamnote: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*tun.DrainTimeout)
	defer shutdownCancel()

	registry.DestroyAll(shutdownCtx)
	cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}
