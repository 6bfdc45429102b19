package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/audit"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/auth/keys"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/database"
	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/server"
)

// rotatekey promotes a freshly generated signing key to active and moves the
// previous active key into its overlap window. Intended for operators and
// cron; the running service picks the new key up on its next issuance.
func main() {
	if os.Getenv("APP_ENV") == "" {
		os.Setenv("APP_ENV", "development")
	}

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := server.NewLogger(os.Getenv("APP_ENV"))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	manager, err := database.NewManager(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	keyManager := keys.NewManager(&cfg.Keys, logger, keys.NewRepository(manager.DB()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key, err := keyManager.Rotate(ctx)
	if err != nil {
		log.Fatalf("Failed to rotate signing key: %v", err)
	}

	audit.NewSink(manager.DB(), logger).Record(ctx, audit.Event{
		EventType: audit.EventKeyRotated,
		Detail:    "kid=" + key.KID,
	})

	log.Printf("Rotated signing key, new active kid: %s", key.KID)
}
