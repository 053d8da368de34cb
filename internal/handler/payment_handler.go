package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"fermar/internal/payment"
	"fermar/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// PaymentHandler は照合エンジンの2つの入口。
// verify（ブラウザのリダイレクト後）とwebhook（プロセッサからの配送）は
// 同じ決済参照で、どちらが先でも何回でも来る。
type PaymentHandler struct {
	processor     payment.Processor
	reconcile     *usecase.ReconcileUsecase
	webhookSecret string
}

func NewPaymentHandler(processor payment.Processor, reconcile *usecase.ReconcileUsecase, webhookSecret string) *PaymentHandler {
	return &PaymentHandler{
		processor:     processor,
		reconcile:     reconcile,
		webhookSecret: webhookSecret,
	}
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/payments/verify", h.verify)
	e.POST("/webhooks/stripe", h.webhook)
}

type VerifyRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

type VerifyResponse struct {
	Success          bool                         `json:"success"`
	OrderID          int64                        `json:"order_id"`
	AlreadyProcessed bool                         `json:"already_processed"`
	Product          *usecase.ProductAccessOutput `json:"product,omitempty"`
}

type WebhookResponse struct {
	Received bool  `json:"received"`
	OrderID  int64 `json:"order_id,omitempty"`
}

func (h *PaymentHandler) verify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if req.PaymentIntentID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "payment_intent_id is required"})
	}

	//プロセッサ側の事実を取りにいく（クライアントの申告は信用しない）
	conf, err := h.processor.RetrievePayment(c.Request().Context(), req.PaymentIntentID)
	if err != nil {
		log.Error().Err(err).Str("payment_ref", req.PaymentIntentID).Msg("payment lookup failed")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "payment lookup failed"})
	}

	if conf.Status != payment.StatusSucceeded {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "payment not completed"})
	}

	meta, err := payment.ParseMetadata(conf.Metadata)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "payment missing required metadata"})
	}

	out, err := h.reconcile.Materialize(c.Request().Context(), usecase.MaterializeInput{
		PaymentReference: conf.ID,
		Amount:           conf.AmountDecimal(),
		Meta:             meta,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, VerifyResponse{
		Success:          true,
		OrderID:          out.Order.ID,
		AlreadyProcessed: !out.Created,
		Product:          out.Product,
	})
}

func (h *PaymentHandler) webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	//署名検証が通るまで一切の副作用なし
	sig := c.Request().Header.Get(payment.SignatureHeader)
	if err := payment.VerifySignature(body, sig, h.webhookSecret, time.Now()); err != nil {
		log.Warn().Err(err).Msg("webhook signature verification failed")
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid signature"})
	}

	ev, err := payment.ParseEvent(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid payload"})
	}

	//対象外のイベントはそのままACK
	if ev.Type != payment.EventPaymentSucceeded {
		return c.JSON(http.StatusOK, WebhookResponse{Received: true})
	}

	meta, err := payment.ParseMetadata(ev.Data.Object.Metadata)
	if errors.Is(err, payment.ErrMissingMetadata) {
		//購入と無関係な決済。no-opでACKして再配送を止める。
		log.Info().Str("event_id", ev.ID).Msg("webhook without purchase metadata, skipping")
		return c.JSON(http.StatusOK, WebhookResponse{Received: true})
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid metadata"})
	}

	out, err := h.reconcile.Materialize(c.Request().Context(), usecase.MaterializeInput{
		PaymentReference: ev.Data.Object.ID,
		Amount:           ev.Data.Object.AmountDecimal(),
		Meta:             meta,
	})
	if err != nil {
		//エラーを返せばプロセッサが再配送してくる。materializeは冪等なので安全。
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, WebhookResponse{Received: true, OrderID: out.Order.ID})
}
