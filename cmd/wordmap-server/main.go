package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wordmap/internal/config"
	"wordmap/internal/logging"
	"wordmap/internal/schedule"
	"wordmap/internal/server"
	"wordmap/internal/service"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var lazy bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/wordmap/config.yaml if not provided)")
	flag.BoolVar(&lazy, "lazy", false, "Start serving before the index and model are ready")
	flag.Parse()

	cfg, err := config.Resolve(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	log := logging.Configure(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	emb := service.FromConfig(cfg, log)
	if lazy {
		go func() {
			if err := emb.Warmup(ctx); err != nil {
				log.Error("background warmup failed", "err", err)
			}
		}()
	} else {
		start := time.Now()
		if err := emb.Warmup(ctx); err != nil {
			log.Error("startup failed: word embeddings or projection model unavailable", "err", err)
			os.Exit(1)
		}
		log.Info("word embeddings ready", "took", time.Since(start))
	}

	if spec := cfg.Projection.RetrainCron; spec != "" {
		r, err := schedule.NewRetrainer(spec, emb, 0, log)
		if err != nil {
			log.Error("invalid retrain schedule", "err", err)
			os.Exit(1)
		}
		r.Start()
		defer r.Stop()
	}

	mapper := service.NewMapper(emb, service.MapperConfig{
		Languages: cfg.Corpus.Languages,
		MinRunes:  cfg.Server.MinWordRunes,
		CacheTTL:  time.Duration(cfg.Server.CacheTTLSecs) * time.Second,
		Logger:    log,
	})
	srv := server.New(emb, mapper, log)
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		log.Error("http server failed", "err", err)
		os.Exit(1)
	}
}

