package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const StatusSucceeded = "succeeded"

// Confirmation は決済プロセッサが返す支払い確認。
// IDは完了済み決済ごとに一意で、こちらでは冪等キーとしてだけ使う。
type Confirmation struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   int64             `json:"amount"` //最小通貨単位（centavos）
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

func (c Confirmation) AmountDecimal() decimal.Decimal {
	return decimal.New(c.Amount, -2)
}

type CreateIntentInput struct {
	Amount       decimal.Decimal
	Currency     string
	ReceiptEmail string
	Metadata     map[string]string
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// Processor は決済プロセッサAPIの窓口。
type Processor interface {
	RetrievePayment(ctx context.Context, ref string) (Confirmation, error)
	CreateIntent(ctx context.Context, in CreateIntentInput) (Intent, error)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

func NewClient(baseURL string, secretKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
	}
}

func (c *Client) RetrievePayment(ctx context.Context, ref string) (Confirmation, error) {
	endpoint := c.baseURL + "/v1/payment_intents/" + url.PathEscape(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Confirmation{}, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Confirmation{}, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Confirmation{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Confirmation{}, apiError(resp.StatusCode, body)
	}

	var conf Confirmation
	if err := json.Unmarshal(body, &conf); err != nil {
		return Confirmation{}, fmt.Errorf("decode payment intent: %w", err)
	}
	return conf, nil
}

func (c *Client) CreateIntent(ctx context.Context, in CreateIntentInput) (Intent, error) {
	form := url.Values{}
	//decimal → 最小通貨単位
	form.Set("amount", in.Amount.Shift(2).Round(0).String())
	form.Set("currency", in.Currency)
	if in.ReceiptEmail != "" {
		form.Set("receipt_email", in.ReceiptEmail)
	}
	for k, v := range in.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return Intent{}, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Intent{}, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Intent{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Intent{}, apiError(resp.StatusCode, body)
	}

	var intent Intent
	if err := json.Unmarshal(body, &intent); err != nil {
		return Intent{}, fmt.Errorf("decode payment intent: %w", err)
	}
	return intent, nil
}

func apiError(status int, body []byte) error {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return fmt.Errorf("payment api %d: %s", status, e.Error.Message)
	}
	return fmt.Errorf("payment api %d", status)
}
