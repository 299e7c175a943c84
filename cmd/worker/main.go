package main

import (
	"context"
	"log"
	"os"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/app/bootstrap"
)

func main() {
	ctx := context.Background()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/default.yaml"
	}

	cfg, err := bootstrap.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	runtime, err := bootstrap.NewRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap worker runtime: %v", err)
	}
	defer runtime.Close()

	if err := runtime.RunWorker(ctx); err != nil {
		log.Fatalf("run worker: %v", err)
	}
}
