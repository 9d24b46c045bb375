package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"wordmap/internal/config"
	"wordmap/internal/logging"
	"wordmap/internal/service"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var words int
	var skipTrain bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional)")
	flag.IntVar(&words, "words", 40000, "Number of vectors to collect for the training sample")
	flag.BoolVar(&skipTrain, "skip-train", false, "Only write the training sample")
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
	n, err := emb.BuildTrainingSample(ctx, words)
	if err != nil {
		log.Error("building training sample failed", "err", err)
		os.Exit(1)
	}
	log.Info("training sample ready", "rows", n, "path", cfg.Paths().Sample)
	if skipTrain {
		return
	}

	m, err := emb.Model(ctx, true)
	if err != nil {
		log.Error("training failed", "err", err)
		os.Exit(1)
	}
	log.Info("projection model saved", "path", cfg.Paths().Model, "samples", m.Samples,
		"explained_variance", m.Variance)
}
