package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tunesync/server/internal/controller"
	"github.com/tunesync/server/internal/hub"
	"github.com/tunesync/server/internal/provider"
	"github.com/tunesync/server/internal/repository/room/redis"
	"github.com/tunesync/server/internal/service/room"
	"github.com/tunesync/server/pkg/ctxlogger"
	"github.com/tunesync/server/pkg/redisclient"
)

type AppConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	QueueLimit     int    `json:"queue_limit"`
	RetryCeiling   int    `json:"retry_ceiling"`
	IdleTimeoutSec int    `json:"idle_timeout_sec"`
	LogLevel       string `json:"log_level"`
	Persistence    bool   `json:"persistence"`
	RedisPort      int    `json:"redis_port"`
	RedisHost      string `json:"redis_host"`
	RedisPassword  string `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.QueueLimit < 1 {
		return fmt.Errorf("queue limit must be greater than 0")
	}
	if cfg.RetryCeiling < 1 {
		return fmt.Errorf("retry ceiling must be greater than 0")
	}
	if cfg.IdleTimeoutSec < 1 {
		return fmt.Errorf("idle timeout must be greater than 0")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)

	var roomRepo *redis.Repo
	if cfg.Persistence {
		rc, err := redisclient.NewRedisClient(&redisclient.Config{
			Port:     cfg.RedisPort,
			Host:     cfg.RedisHost,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer rc.Close()

		roomRepo = redis.NewRepo(rc, 24*14*time.Hour)
	}

	providers := provider.NewRegistry()
	providers.Register(provider.ITunesID, provider.NewITunesClient())

	// the callbacks only fire once a subscriber exists, which is after
	// the server starts accepting connections below
	var roomService *room.Service
	wsHub := hub.New(&hub.Config{
		KeepaliveInterval: 10 * time.Second,
		AllowedMisses:     3,
		SendBuffer:        32,
		OnRoomEmpty: func(roomCode string) {
			roomService.HandleRoomEmpty(roomCode)
		},
		OnRoomOccupied: func(roomCode string) {
			roomService.HandleRoomOccupied(roomCode)
		},
	}, logger)

	roomService = room.NewService(roomRepo, providers, wsHub, &room.Config{
		QueueLimit:     cfg.QueueLimit,
		RetryCeiling:   cfg.RetryCeiling,
		ResolveTimeout: 10 * time.Second,
		RetryBaseDelay: 500 * time.Millisecond,
		TickInterval:   time.Second,
		IdleTimeout:    time.Duration(cfg.IdleTimeoutSec) * time.Second,
		Persistence:    cfg.Persistence,
	}, logger)

	controller := controller.NewController(roomService, wsHub, logger)
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: controller.GetMux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		roomService.Shutdown()
		wsHub.Close()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	slog.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
