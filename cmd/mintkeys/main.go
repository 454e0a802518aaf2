package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/makkenzo/keybind/internal/config"
	"github.com/makkenzo/keybind/internal/service"
	"github.com/makkenzo/keybind/internal/storage"
	"github.com/makkenzo/keybind/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	keyType := flag.String("type", "lifetime", "License type: lifetime or trial")
	note := flag.String("note", "", "Note stored with every key")
	count := flag.Int("count", 1, "Number of keys to mint")
	hashSecret := flag.String("hash-secret", "", "Print a bcrypt hash for admin.secretHash and exit")
	flag.Parse()

	if *hashSecret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*hashSecret), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("Failed to hash secret: %v", err)
		}
		fmt.Println(string(hash))
		return 0
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger("warn", cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	ctx := context.Background()
	backend, err := storage.Open(ctx, cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to open license store: %v", err)
	}
	defer backend.Close()

	licenseService := service.NewLicenseService(backend.Store, &cfg.License, appLogger)

	result, err := licenseService.Create(ctx, *keyType, *note, *count)
	if err != nil {
		log.Fatalf("Failed to create licenses: %v", err)
	}

	for _, key := range result.Keys {
		fmt.Println(key)
	}
	if len(result.Keys) < result.Requested {
		fmt.Fprintf(os.Stderr, "created %d of %d keys, see log for failures\n", len(result.Keys), result.Requested)
		return 1
	}
	return 0
}
