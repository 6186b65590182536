package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/rent-in-out1/rent-in-out-backend/internal/config"
	"github.com/rent-in-out1/rent-in-out-backend/internal/handler"
	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
	chatService "github.com/rent-in-out1/rent-in-out-backend/internal/service/chat"
	"github.com/rent-in-out1/rent-in-out-backend/internal/service/delivery"
	"github.com/rent-in-out1/rent-in-out-backend/internal/store/mongo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Warn("failed to load .env file, continuing with system environment variables only", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", "err", err)
	}
	log.SetLevel(cfg.LogLevel)
	log.SetReportTimestamp(true)

	var (
		users         chat.UserDirectory
		conversations chat.ConversationStore
	)
	if cfg.Mongo.Enabled() {
		store, err := mongo.Connect(ctx, mongo.Options{
			URL:      cfg.Mongo.URL,
			Database: cfg.Mongo.Database,
			Timeout:  cfg.Mongo.Timeout,
		})
		if err != nil {
			log.Fatal("failed to initialize document store", "err", err)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				log.Warn("failed to disconnect from MongoDB", "err", err)
			}
		}()
		users, conversations = store, store
	} else {
		log.Warn("MONGO_URL not set, using the in-memory store; data is lost on restart")
		memory := chat.NewMemoryStore()
		users, conversations = memory, memory
	}

	gateway := delivery.NewGateway(nil)
	defer gateway.Close()

	if cfg.Redis.Enabled() {
		broker, err := delivery.NewRedisBroker(ctx, cfg.Redis.URL, cfg.Redis.Channel)
		if err != nil {
			log.Warn("failed to initialize redis relay, delivering to local connections only", "err", err)
		} else {
			defer broker.Close()
			gateway.SetBroker(broker)
			go func() {
				if err := broker.Run(ctx, gateway.Deliver); err != nil {
					log.Error("redis relay stopped", "err", err)
				}
			}()
			log.Info("redis relay enabled", "channel", cfg.Redis.Channel)
		}
	}

	chatSvc := chatService.NewService(users, conversations, gateway)

	router := handler.NewRouter(chatSvc, gateway, handler.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		Exclude:     chat.NewExclusion(cfg.Directory.SuperID),
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Long-lived event streams end with the process context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	log.Info("rent-in-out backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Error("server error", "err", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
