package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/seccerts/certpipe/internal/adapters/corpus"
)

func main() {
	cpeFile := flag.String("cpe-file", "", "Path to CPE dictionary JSON file")
	cveFile := flag.String("cve-file", "", "Path to CVE feed JSON file")
	dbPath := flag.String("db-path", "./data/corpus.db", "Path to corpus database")
	flag.Parse()

	if *cpeFile == "" && *cveFile == "" {
		log.Fatal("nothing to load: provide -cpe-file and/or -cve-file")
	}

	log.Println("=== Reference Corpus Loader ===")
	log.Printf("Database: %s", *dbPath)

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	repo, err := corpus.NewSQLiteCorpus(*dbPath)
	if err != nil {
		log.Fatalf("Failed to create repository: %v", err)
	}
	defer repo.Close()

	loader := corpus.NewSeedLoader(repo)
	ctx := context.Background()

	if *cpeFile != "" {
		if err := loader.LoadCPEFile(ctx, *cpeFile); err != nil {
			log.Fatalf("Failed to load CPE data: %v", err)
		}
	}
	if *cveFile != "" {
		if err := loader.LoadCVEFile(ctx, *cveFile); err != nil {
			log.Fatalf("Failed to load CVE data: %v", err)
		}
	}

	cpeCount, _ := repo.CPECount(ctx)
	cveCount, _ := repo.GetTotalCount(ctx)
	log.Printf("✓ Database now contains %d CPEs and %d CVEs", cpeCount, cveCount)
}
