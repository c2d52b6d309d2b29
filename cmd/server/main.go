package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"prompt-together/internal/ai"
	"prompt-together/internal/api"
	"prompt-together/internal/chat"
	"prompt-together/internal/config"
	"prompt-together/internal/room"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[CONFIG] Failed to load configuration: %v", err)
	}

	registry := room.NewRegistry(cfg.RoomIdleTTL)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.RoomSweepSpec, func() {
		if evicted := registry.EvictIdle(); evicted > 0 {
			log.Printf("[REGISTRY] Sweep evicted %d idle rooms", evicted)
		}
	}); err != nil {
		log.Fatalf("[REGISTRY] Invalid sweep spec %q: %v", cfg.RoomSweepSpec, err)
	}
	sweeper.Start()

	var provider api.Completer
	if cfg.AIProviderURL != "" {
		provider = ai.NewProvider(cfg.AIProviderURL, cfg.AIProviderKey, cfg.AITimeout)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", chat.ServeWS(registry, chat.Options{
		RateLimitBurst:  cfg.RateLimitBurst,
		RateLimitRefill: cfg.RateLimitRefill,
	}))
	mux.HandleFunc("/api/chat", api.ChatHandler(provider))
	mux.HandleFunc("/healthz", api.HealthHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Printf("🚀 Server starting on :%s...\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop

	fmt.Println("\nShutdown signal received. Cleaning up...")
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	registry.Close()

	fmt.Println("Graceful shutdown complete. Goodnight!")
}
