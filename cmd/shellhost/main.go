package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kestrelbrowser/shellhost/internal/engine/sim"
	"github.com/kestrelbrowser/shellhost/internal/infrastructure/config"
	"github.com/kestrelbrowser/shellhost/internal/infrastructure/server"
)

func main() {
	// Flags override the environment for local runs
	port := flag.String("port", "", "Server port")
	downloadDir := flag.String("download-dir", "", "Download directory")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *downloadDir != "" {
		cfg.Downloads.Dir = *downloadDir
	}

	// The simulated engine backs the process until a native embedder is
	// wired in; everything above the engine boundary is identical
	eng := sim.New()

	srv, err := server.NewServer(cfg, eng)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}
