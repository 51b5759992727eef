package main

import (
	"context"
	"log"
	"time"

	"docbrain/internal/activities"
	"docbrain/internal/config"
	"docbrain/internal/objectstore"
	"docbrain/internal/providers"
	"docbrain/internal/redact"
	"docbrain/internal/storage"
	"docbrain/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL, storage.PoolOptions{MaxConns: int32(cfg.PostgresMaxConns)})
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db, cfg.EmbedDim); err != nil {
		log.Fatal(err)
	}
	objects, err := objectstore.New(cfg.StorageRoot)
	if err != nil {
		log.Fatal(err)
	}
	redactor := redact.NewClient(cfg.RedactorURL, time.Duration(cfg.RedactorTimeoutSec)*time.Second, cfg.RedactFailClosed)
	embedder, _ := providers.Build(cfg.EmbedProvider, cfg.AnswerProvider, cfg.OpenAIBaseURL, float64(cfg.ProviderRPS), cfg.EmbedDim)

	a := activities.New(cfg, db, objects, redactor, embedder)
	activities.Register(w, a)

	log.Printf("docbrain worker listening on %s queue=%s embed_provider=%q", cfg.TemporalAddress, cfg.TemporalTaskQueue, cfg.EmbedProvider)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}
