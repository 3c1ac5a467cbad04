package main

import (
	"chatcore/internal/auth"
	"chatcore/internal/chat"
	"chatcore/internal/config"
	"chatcore/internal/database"
	"chatcore/internal/handlers"
	"chatcore/internal/hub"
	"chatcore/internal/jwt"
	"chatcore/internal/keyValue"
	"chatcore/internal/logging"
	"chatcore/internal/presence"
	"chatcore/internal/snowflake"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
)

func setupRedis(cfg *config.ConfigFile) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func supervisor(sugar *zap.SugaredLogger) *suture.Supervisor {
	return suture.New("chatcore", suture.Spec{
		EventHook: func(e suture.Event) {
			sugar.Warnw("Supervisor event", "event", e.String())
		},
		Timeout: 15 * time.Second,
	})
}

func main() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "config.yaml"
	}
	configPath := flag.String("config", defaultPath, "path of the yaml config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Println("Reading config file...")
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	sugar, err := logging.Setup(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer sugar.Sync()

	db, err := database.Setup(cfg, sugar)
	if err != nil {
		sugar.Fatal(err)
	}
	defer db.Close()
	store := database.NewStore(db, sugar)

	var redisClient *redis.Client
	if !cfg.SelfContained {
		sugar.Infof("Connecting to redis at %s...", cfg.RedisAddress)
		redisClient, err = setupRedis(cfg)
		if err != nil {
			sugar.Fatal(err)
		}
		defer redisClient.Close()
	}

	ids, err := snowflake.New(cfg.SnowflakeWorkerID)
	if err != nil {
		sugar.Fatal(err)
	}

	kv := keyValue.New(sugar, redisClient)
	tracker := presence.New(kv, cfg.PresenceTTL)
	tokens := jwt.New(cfg.JwtSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	h := hub.New(sugar, tracker, hub.Options{
		SendBuffer:        cfg.HubSendBuffer,
		PresenceRefresh:   cfg.PresenceTTL / 3,
		MessagesPerSecond: cfg.WsMessagesPerSecond,
		Burst:             cfg.WsBurst,
	})

	root := supervisor(sugar)
	root.Add(h)
	root.Add(kv)

	var publisher chat.Publisher = h
	if redisClient != nil {
		relay := hub.NewRelay(sugar, h, redisClient)
		root.Add(relay)
		publisher = relay
	}

	engine := chat.New(store, ids, publisher, tracker, sugar)
	authService := auth.New(store, kv, tokens, ids, tracker, sugar, cfg.BcryptCost)

	router := handlers.New(cfg, sugar, authService, engine, h, store).Router()
	root.Add(handlers.NewServer(cfg, sugar, router))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		sugar.Error(err)
	}
	sugar.Info("Shut down")
}
