package main

import (
	"flag"
	"fmt"
	"log"

	"edgecounter/internal/config"
	"edgecounter/internal/repository/sqlite"
	"edgecounter/internal/service/storage"
)

func main() {
	defaults := config.Default()
	imagesDir := flag.String("images", defaults.ArtifactDirectory, "Directory containing saved frames")
	dbPath := flag.String("db", defaults.Store.DatabasePath, "Database path")
	flag.Parse()

	fmt.Printf("Indexing frames from %s into database %s\n", *imagesDir, *dbPath)

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	repo := sqlite.NewArtifactRepository(db)

	indexed, err := repo.List(0)
	if err != nil {
		log.Fatalf("Failed to read index: %v", err)
	}
	known := make(map[string]bool, len(indexed))
	for _, a := range indexed {
		known[a.Filename] = true
	}

	found, err := storage.ScanDir(*imagesDir)
	if err != nil {
		log.Fatalf("Failed to scan frames: %v", err)
	}

	inserted, skipped := 0, 0
	for i := range found {
		if known[found[i].Filename] {
			skipped++
			continue
		}
		if _, err := repo.Insert(&found[i]); err != nil {
			log.Printf("Failed to index %s: %v", found[i].Filename, err)
			skipped++
			continue
		}
		inserted++
	}

	fmt.Printf("Indexed %d frames, skipped %d\n", inserted, skipped)

	if total, err := repo.Count(); err == nil {
		fmt.Printf("Total frames in index: %d\n", total)
	}
}
