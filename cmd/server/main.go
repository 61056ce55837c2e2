package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/worknet/backend/internal/config"
	"github.com/worknet/backend/internal/db"
	httpHandlers "github.com/worknet/backend/internal/http/handlers"
	httpRouter "github.com/worknet/backend/internal/http/router"
	"github.com/worknet/backend/internal/logger"
	"github.com/worknet/backend/internal/repository"
	"github.com/worknet/backend/internal/service"
	"github.com/worknet/backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	// Подключение к базе и индексы.
	client, err := db.NewMongo(ctx, cfg.MongoURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			log.Printf("main: ошибка отключения от базы: %v", err)
		}
	}()

	database := client.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		log.Fatalf("main: ошибка создания индексов: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// Репозитории.
	userRepo := repository.NewUserRepository(database)
	orderRepo := repository.NewOrderRepository(database)
	paymentRepo := repository.NewPaymentRepository(database)
	gigRepo := repository.NewGigRepository(database)

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	settlementService := service.NewSettlementService(paymentRepo, gigRepo)
	orderService := service.NewOrderService(orderRepo, gigRepo, settlementService)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run()
	orderService.SetHub(hub)

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	rpcHandler := httpHandlers.NewRPCHandler(orderService, settlementService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(client)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, authHandler, rpcHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	logger.Log.WithField("port", cfg.HTTPPort).Info("main: сервер запускается")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: ошибка http сервера: %v", err)
	}
}
