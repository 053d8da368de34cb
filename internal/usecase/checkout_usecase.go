package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"fermar/internal/payment"
	repo "fermar/internal/repository"

	"github.com/rs/zerolog/log"
)

// CheckoutUsecase は支払い前の可用性チェックとPaymentIntent作成。
// ここで積んだmetadataを、あとで照合エンジンがそのまま読む。
type CheckoutUsecase struct {
	products  repo.ProductRepository
	processor payment.Processor
	currency  string
}

func NewCheckoutUsecase(products repo.ProductRepository, processor payment.Processor, currency string) *CheckoutUsecase {
	return &CheckoutUsecase{products: products, processor: processor, currency: currency}
}

type CheckoutInput struct {
	ProductID  int64
	Email      string
	Phone      string
	Shipping   payment.ShippingAddress
	Referencia string
}

type CheckoutOutput struct {
	ClientSecret string `json:"client_secret"`
}

func (u *CheckoutUsecase) CreatePaymentIntent(ctx context.Context, in CheckoutInput) (CheckoutOutput, error) {
	if in.ProductID <= 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid email")
	}

	p, err := u.products.FindByID(ctx, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return CheckoutOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.IsActive {
		return CheckoutOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	//ここが事前の可用性チェック。確定時の再チェックは照合エンジン側。
	if !p.IsDigital {
		if p.Stock <= 0 {
			return CheckoutOutput{}, NewHTTPError(http.StatusConflict, "out of stock")
		}
		if strings.TrimSpace(in.Shipping.Line1) == "" {
			return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "shipping address required")
		}
	}

	shippingJSON, err := json.Marshal(in.Shipping)
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	//金額はカタログ価格から。クライアントの申告は使わない。
	intent, err := u.processor.CreateIntent(ctx, payment.CreateIntentInput{
		Amount:       p.Price,
		Currency:     u.currency,
		ReceiptEmail: email,
		Metadata: map[string]string{
			"productId":       strconv.FormatInt(p.ID, 10),
			"productName":     p.Name,
			"email":           email,
			"phone":           strings.TrimSpace(in.Phone),
			"shippingAddress": string(shippingJSON),
			"referencia":      in.Referencia,
		},
	})
	if err != nil {
		log.Error().Err(err).Int64("product_id", p.ID).Msg("create payment intent failed")
		return CheckoutOutput{}, NewHTTPError(http.StatusBadGateway, "payment processor error")
	}

	return CheckoutOutput{ClientSecret: intent.ClientSecret}, nil
}
