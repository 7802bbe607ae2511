package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parsshop-be/internal/config"
	"parsshop-be/internal/coupon"
	"parsshop-be/internal/db"
	"parsshop-be/internal/httpx"
	"parsshop-be/internal/inventory"
	"parsshop-be/internal/logger"
	"parsshop-be/internal/notify"
	"parsshop-be/internal/order"
	"parsshop-be/internal/payment"
	"parsshop-be/internal/product"
	"parsshop-be/internal/reconcile"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := db.InitDB(cfg)
	defer database.Close()

	var events notify.Publisher = notify.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		events = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.OrderEventsTopic, 1024)
	}
	defer events.Close()

	gateway := payment.NewZarinpalGateway(cfg.ZarinpalMerchantID, cfg.PaymentCallbackURL)

	ledger := inventory.NewLedger()
	productRepo := product.NewRepository(database)
	couponRepo := coupon.NewRepository(database)
	couponSvc := coupon.NewService(couponRepo)
	orderRepo := order.NewRepository(database, ledger, couponRepo)
	orderSvc := order.NewService(orderRepo, productRepo, couponSvc, gateway, events)
	reconcileSvc := reconcile.NewService(orderRepo, gateway, events)

	router := httpx.NewRouter()
	(&httpx.OrderHandler{Orders: orderSvc}).Register(router)
	(&httpx.PaymentHandler{Orders: orderSvc, Reconcile: reconcileSvc}).Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: router,
	}

	go func() {
		logger.L().Info("server listening", zap.String("port", cfg.AppPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L().Fatal("server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.L().Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.L().Error("shutdown failed", zap.Error(err))
	}
}
