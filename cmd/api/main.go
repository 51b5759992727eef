package main

import (
	"log"
	"net/http"

	"docbrain/internal/api"
	"docbrain/internal/config"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	h := api.NewServer(cfg)
	log.Printf("docbrain api listening on %s embed_provider=%q answer_provider=%q", cfg.APIAddr, cfg.EmbedProvider, cfg.AnswerProvider)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal(err)
	}
}
