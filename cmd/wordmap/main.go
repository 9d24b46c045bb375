package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"wordmap/internal/config"
	"wordmap/internal/corpus"
	"wordmap/internal/logging"
	"wordmap/internal/projection"
	"wordmap/internal/service"
	"wordmap/internal/tui"
	"wordmap/internal/vectorstore/memory"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath   string
		noPersist bool
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional)")
	flag.BoolVar(&noPersist, "no-persist", false, "Keep the parsed index in memory only; never read or write the index file")
	flag.Parse()

	cfg, err := config.Resolve(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// the terminal belongs to the UI; logs go to a file next to the data
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}
	logPath := filepath.Join(cfg.DataDir, "wordmap.log")
	lf, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer lf.Close()
	logger := logging.ConfigureTo(lf, cfg.Log.Level, cfg.Log.Format)

	emb := service.FromConfig(cfg, logger)
	if noPersist {
		paths := cfg.Paths()
		emb = service.New(service.Options{
			Corpus:     cfg.Corpus,
			Projection: cfg.Projection,
			Paths:      paths,
			Storage:    memory.NewStorage(),
			Models:     projection.NewModelStore(paths.Model),
			Fetcher: corpus.NewFetcher(corpus.FetcherConfig{
				Timeout:    time.Duration(cfg.Corpus.TimeoutSecs) * time.Second,
				MaxRetries: cfg.Corpus.MaxRetries,
				Logger:     logger,
			}),
			Logger: logger,
		})
		logger.Info("index persistence disabled", "index", paths.Index)
	}
	fmt.Fprintf(os.Stderr, "Loading word vectors from %s (first run downloads the corpus; see %s)...\n", cfg.DataDir, logPath)
	if err := emb.Warmup(context.Background()); err != nil {
		log.Fatalf("word embeddings unavailable: %v", err)
	}

	mapper := service.NewMapper(emb, service.MapperConfig{
		Languages: cfg.Corpus.Languages,
		MinRunes:  cfg.Server.MinWordRunes,
		CacheTTL:  time.Duration(cfg.Server.CacheTTLSecs) * time.Second,
		Logger:    logger,
	})
	st := emb.Status()
	summary := fmt.Sprintf("%d words, %d dimensions, model trained %s on %d vectors",
		st.IndexSize, st.Dimension, st.TrainedAt.Format(time.DateTime), st.Samples)

	if _, err := tea.NewProgram(tui.New(mapper, summary), tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}
