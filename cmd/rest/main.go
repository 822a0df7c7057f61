package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chat-session-be/internal/bootstrap"
	"chat-session-be/internal/config"
	"chat-session-be/internal/server"
	"chat-session-be/internal/tracer"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.Tracing)
	defer shutdownTracer(context.Background())

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Start Background Services
	if err := container.Start(ctx); err != nil {
		log.Panicf("Unable to start background services: %v", err)
	}

	// 5. Initialize Server
	srv := server.New(cfg, container.SessionHandler)

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// 6. Run Server
	log.Printf("Server is running on http://localhost:%s", cfg.App.Port)
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
