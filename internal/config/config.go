package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCorpusURL is the multilingual ConceptNet Numberbatch release.
const DefaultCorpusURL = "https://conceptnet.s3.amazonaws.com/downloads/2019/numberbatch/numberbatch-19.08.txt.gz"

// CorpusConfig describes where the raw vectors come from and what to keep.
type CorpusConfig struct {
	URL         string   `yaml:"url"`
	Dimension   int      `yaml:"dimension"`
	Languages   []string `yaml:"languages"`
	MaxRetries  int      `yaml:"max_retries"`
	TimeoutSecs int      `yaml:"timeout_secs"`
}

// SeedWord is a fallback training word used when no sample file exists.
type SeedWord struct {
	Word string `yaml:"word"`
	Lang string `yaml:"lang"`
}

// ProjectionConfig configures PCA training.
type ProjectionConfig struct {
	Components  int        `yaml:"components"`
	SampleWords int        `yaml:"sample_words"`
	SeedWords   []SeedWord `yaml:"seed_words"`
	RetrainCron string     `yaml:"retrain_cron"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs"`
	MinWordRunes int    `yaml:"min_word_runes"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataDir    string           `yaml:"data_dir"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Projection ProjectionConfig `yaml:"projection"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// Paths lists the on-disk artifacts derived from DataDir.
type Paths struct {
	CorpusGz   string
	CorpusText string
	Index      string
	Model      string
	Sample     string
}

// Paths returns the artifact locations under DataDir.
func (c *AppConfig) Paths() Paths {
	return Paths{
		CorpusGz:   filepath.Join(c.DataDir, "numberbatch-19.08.txt.gz"),
		CorpusText: filepath.Join(c.DataDir, "numberbatch-19.08.txt"),
		Index:      filepath.Join(c.DataDir, "nb_index_enko.db"),
		Model:      filepath.Join(c.DataDir, "pca_model_enko.yaml"),
		Sample:     filepath.Join(c.DataDir, "word_vectors_for_pca_enko.bin"),
	}
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	// keys absent from the file keep their defaults; explicit zeros stay zero
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/wordmap/config.yaml.
// If neither exists, it writes defaults to ~/.config/wordmap/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Resolve loads path, or the default locations when path is empty.
func Resolve(path string) (*AppConfig, error) {
	if path == "" {
		cfg, _, err := LoadDefault()
		return cfg, err
	}
	return Load(path)
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "wordmap", "config.yaml"), nil
}

// DefaultSeedWords are the fallback PCA training words.
func DefaultSeedWords() []SeedWord {
	return []SeedWord{
		{Word: "king", Lang: "en"},
		{Word: "queen", Lang: "en"},
		{Word: "apple", Lang: "en"},
		{Word: "love", Lang: "en"},
		{Word: "왕", Lang: "ko"},
		{Word: "여왕", Lang: "ko"},
		{Word: "사과", Lang: "ko"},
		{Word: "사랑", Lang: "ko"},
	}
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		DataDir: "data",
		Corpus: CorpusConfig{
			URL:        DefaultCorpusURL,
			Dimension:  300,
			Languages:  []string{"en", "ko"},
			MaxRetries: 3,
		},
		Projection: ProjectionConfig{
			Components:  2,
			SampleWords: 40000,
			SeedWords:   DefaultSeedWords(),
		},
		Server: ServerConfig{Addr: ":5001", CacheTTLSecs: 3600, MinWordRunes: 2},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.Corpus.URL == "" {
		cfg.Corpus.URL = def.Corpus.URL
	}
	if cfg.Corpus.Dimension == 0 {
		cfg.Corpus.Dimension = def.Corpus.Dimension
	}
	if len(cfg.Corpus.Languages) == 0 {
		cfg.Corpus.Languages = def.Corpus.Languages
	}
	if cfg.Corpus.MaxRetries < 0 {
		cfg.Corpus.MaxRetries = 0
	}
	// PCA output is always two components.
	cfg.Projection.Components = 2
	if cfg.Projection.SampleWords == 0 {
		cfg.Projection.SampleWords = def.Projection.SampleWords
	}
	if len(cfg.Projection.SeedWords) == 0 {
		cfg.Projection.SeedWords = def.Projection.SeedWords
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.CacheTTLSecs == 0 {
		cfg.Server.CacheTTLSecs = def.Server.CacheTTLSecs
	}
	if cfg.Server.MinWordRunes == 0 {
		cfg.Server.MinWordRunes = def.Server.MinWordRunes
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
}

// applyEnvOverrides lets deployments adjust a few settings without a config file.
// It runs after godotenv has populated the environment.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("WORDMAP_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("WORDMAP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WORDMAP_CORPUS_URL"); v != "" {
		cfg.Corpus.URL = v
	}
	if v := os.Getenv("WORDMAP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
}

// Supported reports whether lang is one of the configured corpus languages.
func (c *CorpusConfig) Supported(lang string) bool {
	for _, l := range c.Languages {
		if l == lang {
			return true
		}
	}
	return false
}
