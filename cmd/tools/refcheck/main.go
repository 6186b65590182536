package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/rent-in-out1/rent-in-out-backend/internal/config"
	chatService "github.com/rent-in-out1/rent-in-out-backend/internal/service/chat"
	"github.com/rent-in-out1/rent-in-out-backend/internal/service/delivery"
	"github.com/rent-in-out1/rent-in-out-backend/internal/store/mongo"
)

func main() {
	fix := flag.Bool("fix", false, "repair every reported conversation")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall time limit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn("failed to load .env file, continuing with system environment variables only", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", "err", err)
	}
	log.SetLevel(cfg.LogLevel)

	if !cfg.Mongo.Enabled() {
		log.Fatal("MONGO_URL is required")
	}

	os.Exit(run(cfg, *fix, *asJSON, *timeout))
}

func run(cfg *config.Config, fix, asJSON bool, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store, err := mongo.Connect(ctx, mongo.Options{
		URL:      cfg.Mongo.URL,
		Database: cfg.Mongo.Database,
		Timeout:  cfg.Mongo.Timeout,
	})
	if err != nil {
		log.Error("failed to connect", "err", err)
		return 2
	}
	defer store.Close(context.Background())

	svc := chatService.NewService(store, store, delivery.Discard)

	report, err := svc.Audit(ctx)
	if err != nil {
		log.Error("audit failed", "err", err)
		return 2
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		for _, v := range report.Violations {
			log.Warn("violation", "reason", v.Reason, "conversation", v.ConversationID, "user", v.UserID)
		}
		log.Info("audit finished", "users", report.Users, "conversations", report.Conversations, "violations", len(report.Violations))
	}

	if len(report.Violations) == 0 {
		return 0
	}
	if !fix {
		return 1
	}

	fixed, err := svc.Fix(ctx, report)
	if err != nil {
		log.Error("repair stopped", "fixed", fixed, "err", err)
		return 2
	}
	log.Info("repair finished", "conversations", fixed)
	return 0
}
