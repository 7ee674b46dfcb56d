package main

import (
	"log"
	"os"

	"queuectl/cmd"
	"queuectl/internal/config"
	"queuectl/internal/queue"
	"queuectl/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal("failed to create data directory: ", err)
	}

	store, err := storage.Open(cfg.DBPath())
	if err != nil {
		log.Fatal("failed to initialize storage: ", err)
	}
	defer store.Close()

	manager := queue.New(store, cfg)

	cmd.Execute(manager, cfg)
}
