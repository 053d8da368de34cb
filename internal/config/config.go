package config

import (
	"fmt"
	"os"
	"strconv"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string // 接続文字列（あればこれを優先）
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5433）
	PostgresSSLMode  string // sslmode（disable等）

	StripeSecretKey     string // Stripe APIキー
	StripeWebhookSecret string // Webhook署名シークレット
	StripeAPIBaseURL    string // テスト用の上書きURL（空ならStripe本番）

	ResendAPIKey string // メール送信APIキー（空なら通知オフ）
	EmailFrom    string // 送信元アドレス
	OwnerEmail   string // 新規注文を受け取る管理者アドレス

	DownloadTokenSecret string // ダウンロードリンク署名シークレット
	DownloadDir         string // ダウンロードファイル置き場
	BaseURL             string // メール内リンク等の自サイトURL

	Currency string // 決済通貨（mxn）

	GoEnv    string // dev/prod
	FEURL    string // フロントURL（CORSなどで使う）
	LogLevel string // zerologのレベル（空ならinfo）
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port: os.Getenv("PORT"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresSSLMode:  os.Getenv("POSTGRES_SSLMODE"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeAPIBaseURL:    os.Getenv("STRIPE_API_BASE_URL"),

		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		EmailFrom:    os.Getenv("EMAIL_FROM"),
		OwnerEmail:   os.Getenv("OWNER_EMAIL"),

		DownloadTokenSecret: os.Getenv("DOWNLOAD_TOKEN_SECRET"),
		DownloadDir:         os.Getenv("DOWNLOAD_DIR"),
		BaseURL:             os.Getenv("BASE_URL"),

		Currency: os.Getenv("CURRENCY"),

		GoEnv:    os.Getenv("GO_ENV"),
		FEURL:    os.Getenv("FE_URL"),
		LogLevel: os.Getenv("LOG_LEVEL"),
	}

	// DATABASE_URLを使わないなら個別指定が必須
	if cfg.DatabaseURL == "" {
		pgPort, err := mustAtoi("POSTGRES_PORT")
		if err != nil {
			return Config{}, err
		}
		cfg.PostgresPort = pgPort

		if cfg.PostgresUser == "" {
			return Config{}, fmt.Errorf("POSTGRES_USER is required")
		}
		if cfg.PostgresPassword == "" {
			return Config{}, fmt.Errorf("POSTGRES_PASSWORD is required")
		}
		if cfg.PostgresDB == "" {
			return Config{}, fmt.Errorf("POSTGRES_DB is required")
		}
		if cfg.PostgresHost == "" {
			return Config{}, fmt.Errorf("POSTGRES_HOST is required")
		}
		if cfg.PostgresSSLMode == "" {
			cfg.PostgresSSLMode = "disable"
		}
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.StripeSecretKey == "" {
		return Config{}, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if cfg.StripeWebhookSecret == "" {
		return Config{}, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	if cfg.DownloadTokenSecret == "" {
		return Config{}, fmt.Errorf("DOWNLOAD_TOKEN_SECRET is required")
	}
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}
	if cfg.FEURL == "" {
		return Config{}, fmt.Errorf("FE_URL is required")
	}
	if cfg.BaseURL == "" {
		return Config{}, fmt.Errorf("BASE_URL is required")
	}

	//デフォルト
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "./downloads"
	}
	if cfg.Currency == "" {
		cfg.Currency = "mxn"
	}

	return cfg, nil
}

func mustAtoi(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}
