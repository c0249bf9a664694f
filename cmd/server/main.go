/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the card engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file + environment)
  2. Initialize SQLite store
  3. Create account service and restore persisted accounts
  4. Create API handler and start the wall-clock scheduler
  5. Start server with graceful shutdown

CONFIGURATION:
  Read from config.yaml in the working directory (optional) and from
  environment variables (which take precedence):

    PORT                 HTTP server port          (default: 8080)
    DB_PATH              SQLite database path      (default: cards.db)
                         Use ":memory:" for an in-memory database
    SCHEDULER_INTERVAL   Schedule tick interval    (default: 1m)
    DEMO_MODE            Run on a virtual clock    (default: false)

  In demo mode the engine runs on a virtual clock controlled via
  POST /api/admin/advance, and scenarios can be loaded. Outside demo
  mode the scheduler drives schedule events from the system clock.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/warp/card-engine/api"
	"github.com/warp/card-engine/card"
	"github.com/warp/card-engine/engine"
	"github.com/warp/card-engine/store/sqlite"
)

func main() {
	// Configuration
	viper.SetDefault("port", 8080)
	viper.SetDefault("db_path", "cards.db")
	viper.SetDefault("scheduler_interval", "1m")
	viper.SetDefault("demo_mode", false)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("Failed to read config file: %v", err)
		}
	}
	viper.AutomaticEnv()

	port := viper.GetInt("port")
	dbPath := viper.GetString("db_path")
	interval := viper.GetDuration("scheduler_interval")
	demoMode := viper.GetBool("demo_mode")

	// Initialize store
	store, err := sqlite.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Clock: system by default, virtual in demo mode
	var clock engine.Clock = engine.SystemClock{}
	var vclock *engine.VirtualClock
	if demoMode {
		vclock = engine.NewVirtualClock(engine.Now().StartOfDay())
		clock = vclock
		log.Printf("[Server] Demo mode: virtual clock at %s", vclock.Now())
	}

	// Service and handler
	svc := card.NewService(store, clock)
	if err := svc.Restore(context.Background()); err != nil {
		log.Fatalf("Failed to restore accounts: %v", err)
	}
	if n := len(svc.Accounts()); n > 0 {
		log.Printf("[Server] Restored %d account(s)", n)
	}
	handler := api.NewHandler(svc, store)
	handler.VClock = vclock

	// Wall-clock scheduler (pointless under a virtual clock)
	scheduler := api.NewScheduler(svc)
	scheduler.CheckInterval = interval
	scheduler.Enabled = !demoMode
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("[Server] Listening on http://localhost:%d", port)
		log.Printf("[Server] API available at http://localhost:%d/api", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
