package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ResendClient はResendのメールAPIを叩く実装。
type ResendClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	from       string
	ownerEmail string
}

func NewResendClient(baseURL string, apiKey string, from string, ownerEmail string) *ResendClient {
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	return &ResendClient{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		from:       from,
		ownerEmail: ownerEmail,
	}
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (c *ResendClient) OrderCreated(ctx context.Context, in OrderCreatedInput) error {
	//購入者向け確認メール
	buyer := emailRequest{
		From:    c.from,
		To:      []string{in.Email},
		Subject: fmt.Sprintf("Confirmación de tu pedido #%d", in.OrderID),
		HTML:    buyerHTML(in),
	}
	if err := c.send(ctx, buyer); err != nil {
		return fmt.Errorf("buyer email: %w", err)
	}

	//オーナー向け通知
	if c.ownerEmail != "" {
		owner := emailRequest{
			From:    c.from,
			To:      []string{c.ownerEmail},
			Subject: fmt.Sprintf("Nuevo pedido #%d", in.OrderID),
			HTML: fmt.Sprintf("<p>Pedido #%d — %s — $%s</p>",
				in.OrderID, in.ProductName, in.TotalAmount.StringFixed(2)),
		}
		if err := c.send(ctx, owner); err != nil {
			return fmt.Errorf("owner email: %w", err)
		}
	}

	return nil
}

func buyerHTML(in OrderCreatedInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Gracias por tu compra. Pedido #%d</p>", in.OrderID)
	fmt.Fprintf(&b, "<p>%s — $%s</p>", in.ProductName, in.TotalAmount.StringFixed(2))
	if in.IsDigital && in.DownloadLink != "" {
		fmt.Fprintf(&b, `<p><a href="%s">Descargar tu producto</a></p>`, in.DownloadLink)
	}
	return b.String()
}

func (c *ResendClient) send(ctx context.Context, email emailRequest) error {
	payload, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("email api %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
