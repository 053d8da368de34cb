package main

import (
	"os"
	"time"

	"fermar/internal/config"
	"fermar/internal/domain/model"
	"fermar/internal/handler"
	"fermar/internal/infra/db"
	infraRepo "fermar/internal/infra/repository"
	"fermar/internal/notification"
	"fermar/internal/payment"
	"fermar/internal/server"
	"fermar/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func setupLogger(cfg config.Config) {
	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		if l, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			level = l
		}
	}
	zerolog.SetGlobalLevel(level)

	if cfg.GoEnv == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = log.With().Str("service", "fermar-api").Logger()
}

func main() {
	// .envはローカル用。なければ環境変数をそのまま使う
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	setupLogger(cfg)

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	if err := gormDB.AutoMigrate(
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
	); err != nil {
		log.Fatal().Err(err).Msg("auto migrate failed")
	}

	//Repository（GORM実装）生成
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	itemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//外部サービス
	processor := payment.NewClient(cfg.StripeAPIBaseURL, cfg.StripeSecretKey)

	var notifier notification.Notifier
	if cfg.ResendAPIKey != "" {
		notifier = notification.NewResendClient("", cfg.ResendAPIKey, cfg.EmailFrom, cfg.OwnerEmail)
	}

	//メールに載せるダウンロードリンクの有効期限は7日
	tokens := usecase.NewDownloadTokenIssuer(cfg.DownloadTokenSecret, 7*24*time.Hour)

	//Usecase生成
	productUC := usecase.NewProductUsecase(productRepo)
	checkoutUC := usecase.NewCheckoutUsecase(productRepo, processor, cfg.Currency)
	reconcileUC := usecase.NewReconcileUsecase(txManager, orderRepo, itemRepo, productRepo, notifier, tokens, cfg.BaseURL)
	downloadUC := usecase.NewDownloadUsecase(orderRepo, itemRepo, productRepo, cfg.DownloadDir)
	fulfillmentUC := usecase.NewFulfillmentUsecase(txManager)

	//Handler生成
	productH := handler.NewProductHandler(productUC)
	checkoutH := handler.NewCheckoutHandler(checkoutUC)
	paymentH := handler.NewPaymentHandler(processor, reconcileUC, cfg.StripeWebhookSecret)
	downloadH := handler.NewDownloadHandler(downloadUC, tokens)
	adminH := handler.NewAdminOrderHandler(fulfillmentUC)

	//Server起動
	e := server.New(cfg, productH, checkoutH, paymentH, downloadH, adminH)

	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := server.Start(e, cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
