package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ameliahart/undercurrent"
)

func main() {
	dbPath := flag.String("db", "./undercurrent.db", "path to SQLite database")
	addr := flag.String("addr", ":8479", "listen address")
	provider := flag.String("provider", "ollama", "extraction provider: ollama or openai")
	model := flag.String("model", "", "extraction model (provider default if empty)")
	ollamaURL := flag.String("ollama-url", "http://localhost:11434", "Ollama base URL")
	flag.Parse()

	engine, err := undercurrent.NewEngine(undercurrent.EngineConfig{
		DBPath:        *dbPath,
		Provider:      *provider,
		Model:         *model,
		OllamaBaseURL: *ollamaURL,
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "undercurrent-web: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	secret := []byte(os.Getenv("UNDERCURRENT_JWT_SECRET"))
	if len(secret) == 0 {
		// Ephemeral secret; tokens won't survive a restart.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			fmt.Fprintf(os.Stderr, "undercurrent-web: generate secret: %v\n", err)
			os.Exit(1)
		}
		secret = []byte(hex.EncodeToString(buf))
		log.Println("undercurrent-web: UNDERCURRENT_JWT_SECRET not set, using an ephemeral secret")
	}

	mux := newRouter(engine, secret)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      logging(recovery(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // insight runs wait on the model
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("undercurrent-web: listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("undercurrent-web: %v", err)
		}
	}()

	<-done
	log.Println("undercurrent-web: shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("undercurrent-web: shutdown error: %v", err)
	}
	log.Println("undercurrent-web: stopped")
}
