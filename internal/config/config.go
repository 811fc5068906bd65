package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	Framework    string
	Stage        string
	SourcesPath  string
	CacheDir     string
	SnapshotPath string
	DatasetDB    string
	CorpusDB     string
	Workers      int
	ForceRefresh bool
	Policy       string
	Debug        bool
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables.
func Load() *Config {
	cfg := &Config{}

	// Defaults and Environment Variables
	cfg.Framework = getEnv("CERTPIPE_FRAMEWORK", "cc")
	cfg.Stage = getEnv("CERTPIPE_STAGE", "all")
	cfg.SourcesPath = getEnv("CERTPIPE_SOURCES", "./configs/sources.yaml")
	cfg.CacheDir = getEnv("CERTPIPE_CACHE", defaultDataPath("cache"))
	cfg.SnapshotPath = getEnv("CERTPIPE_SNAPSHOT", defaultDataPath("dataset.json"))
	cfg.DatasetDB = getEnv("CERTPIPE_DB", defaultDataPath("dataset.db"))
	cfg.CorpusDB = getEnv("CERTPIPE_CORPUS", defaultDataPath("corpus.db"))
	cfg.Workers = getEnvInt("CERTPIPE_WORKERS", 8)
	cfg.Policy = getEnv("CERTPIPE_MERGE_POLICY", "majority")

	// Command Line Flags (Override Env)
	flag.StringVar(&cfg.Framework, "framework", cfg.Framework, "Certification framework (cc or fips)")
	flag.StringVar(&cfg.Stage, "stage", cfg.Stage, "Pipeline stage (all, fetch, parse, heuristics)")
	flag.StringVar(&cfg.SourcesPath, "sources", cfg.SourcesPath, "Path to sources YAML file")
	flag.StringVar(&cfg.CacheDir, "cache", cfg.CacheDir, "Directory for the document cache")
	flag.StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "Path to the dataset snapshot file")
	flag.StringVar(&cfg.DatasetDB, "db", cfg.DatasetDB, "Path to the dataset SQLite database")
	flag.StringVar(&cfg.CorpusDB, "corpus", cfg.CorpusDB, "Path to the reference corpus SQLite database")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent fetch/parse workers")
	flag.BoolVar(&cfg.ForceRefresh, "refresh", false, "Bypass the document cache")
	flag.StringVar(&cfg.Policy, "merge-policy", cfg.Policy, "Narrative candidate tie break (majority or first_seen)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")

	flag.Parse()

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

// defaultDataPath resolves a file under ~/.certpipe, creating the directory
// if it doesn't exist.
func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: Could not get user home directory, using current dir: %v", err)
		return name
	}

	dir := filepath.Join(home, ".certpipe")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("Warning: Could not create .certpipe directory, using current dir: %v", err)
		return name
	}

	return filepath.Join(dir, name)
}
