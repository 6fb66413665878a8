package main

import (
	"context"
	"fmt"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/chat-relay/config"
	"github.com/example/chat-relay/metrics"
	"github.com/example/chat-relay/modules/assistant"
	"github.com/example/chat-relay/modules/auth"
	"github.com/example/chat-relay/modules/chat"
	"github.com/example/chat-relay/modules/gateway"
	"github.com/example/chat-relay/modules/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Create modules
	authModule := auth.NewModule(db, auth.JWTConfig{
		SecretKey:            cfg.Auth.JWTSecret,
		AccessTokenDuration:  cfg.Auth.AccessDuration,
		RefreshTokenDuration: cfg.Auth.RefreshDuration,
		Issuer:               cfg.Auth.Issuer,
	})
	chatModule := chat.NewModule(db, rdb)
	relayModule := relay.NewModule()
	assistantModule := assistant.NewModule(assistant.Config{
		APIURL:  cfg.Assistant.APIURL,
		APIKey:  cfg.Assistant.APIKey,
		Model:   cfg.Assistant.Model,
		Timeout: cfg.Assistant.Timeout,
	})
	gatewayModule := gateway.NewModule(cfg, relayModule, chatModule, authModule, assistantModule)

	// Register modules with the framework.
	// Order: independent modules first, the gateway last since it pulls
	// services from the others during Start.
	app.Register(authModule)
	app.Register(chatModule)
	app.Register(relayModule)
	app.Register(assistantModule)
	if cfg.Metrics.Enabled {
		app.Register(metrics.NewModule(fmt.Sprintf(":%d", cfg.Metrics.Port)))
	}
	app.Register(gatewayModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	log.Printf("chat-relay listening on :%d", cfg.Server.Port)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}
