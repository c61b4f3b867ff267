package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mhealth-data/internal/config"
	"mhealth-data/internal/database"
	httpapi "mhealth-data/internal/http"
	"mhealth-data/internal/logger"
	"mhealth-data/internal/mqtt"
	"mhealth-data/internal/repository"
	"mhealth-data/internal/service"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "mhealth-data")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Repository：优先 Postgres，DB 不可用时回退内存实现（本地联调不因无 DB 失败）
	var db *sql.DB
	var sleepRepo repository.SleepRepository = repository.NewMemorySleepRepository()
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			sleepRepo = repository.NewPostgresSleepRepository(db)
			log.Info("DB enabled for mhealth-data")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory repository", zap.Error(err))
		}
	}

	// Redis：可选的单日时序响应缓存
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	tsClient := service.NewTimeSeriesClient(cfg.TimeSeries.BaseURL, cfg.TimeSeries.Timeout, redisClient, log)
	awakenings := service.NewAwakeningsService(sleepRepo, tsClient, log)

	// MQTT：可选的记录事件发布（默认禁用）
	var publisher service.EventPublisher
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		c, err := mqtt.NewClient(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			log.Warn("MQTT enabled but connection failed, events disabled", zap.Error(err))
		} else {
			mqttClient = c
			publisher = mqtt.NewSleepEventPublisher(c, cfg.MQTT.Topic, log)
		}
	}

	sleepService := service.NewSleepService(sleepRepo, awakenings, publisher, log)

	router := httpapi.NewRouter(log)
	router.RegisterSleepRoutes(httpapi.NewSleepHandler(sleepService, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("HTTP server exited", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if mqttClient != nil {
		mqttClient.Disconnect()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}
