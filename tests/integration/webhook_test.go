package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fermar/internal/domain/model"
	"fermar/internal/handler"
	"fermar/internal/payment"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

// 署名付きのwebhookをechoに直接流す（サーバーは立てない）
func postWebhook(t *testing.T, e *echo.Echo, payload []byte, header string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if header != "" {
		req.Header.Set(payment.SignatureHeader, header)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func succeededEvent(ref string, productID int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_%s",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": %q,
			"status": "succeeded",
			"amount": 69900,
			"currency": "mxn",
			"metadata": {"email": "buyer@example.com", "productId": "%d"}
		}}
	}`, uuid.NewString()[:8], ref, productID))
}

func TestWebhook_SignedEvent_CreatesOrder(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 3, false)

	e := echo.New()
	handler.NewPaymentHandler(nil, newUsecase(db), webhookSecret).RegisterRoutes(e)

	ref := "pi_" + uuid.NewString()
	payload := succeededEvent(ref, p.ID)

	rec := postWebhook(t, e, payload, payment.Sign(payload, webhookSecret, time.Now()))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Received bool  `json:"received"`
		OrderID  int64 `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Received)
	assert.NotZero(t, resp.OrderID)

	var count int64
	db.Model(&model.Order{}).Where("payment_reference = ?", ref).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestWebhook_Redelivery_SameOrder(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 3, false)

	e := echo.New()
	handler.NewPaymentHandler(nil, newUsecase(db), webhookSecret).RegisterRoutes(e)

	ref := "pi_" + uuid.NewString()
	payload := succeededEvent(ref, p.ID)
	header := payment.Sign(payload, webhookSecret, time.Now())

	first := postWebhook(t, e, payload, header)
	require.Equal(t, http.StatusOK, first.Code)

	second := postWebhook(t, e, payload, header)
	require.Equal(t, http.StatusOK, second.Code)

	var count int64
	db.Model(&model.Order{}).Where("payment_reference = ?", ref).Count(&count)
	assert.Equal(t, int64(1), count)

	var got model.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, int64(2), got.Stock)
}

func TestWebhook_BadSignature_NoSideEffects(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 3, false)

	e := echo.New()
	handler.NewPaymentHandler(nil, newUsecase(db), webhookSecret).RegisterRoutes(e)

	payload := succeededEvent("pi_"+uuid.NewString(), p.ID)

	rec := postWebhook(t, e, payload, payment.Sign(payload, "whsec_wrong", time.Now()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var count int64
	db.Model(&model.Order{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestWebhook_MissingMetadata_NoOpAck(t *testing.T) {
	db := setupDB(t)

	e := echo.New()
	handler.NewPaymentHandler(nil, newUsecase(db), webhookSecret).RegisterRoutes(e)

	//購入と無関係な決済イベント（metadataなし）
	payload := []byte(`{
		"id": "evt_other",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_other", "status": "succeeded", "amount": 100, "currency": "mxn"}}
	}`)

	rec := postWebhook(t, e, payload, payment.Sign(payload, webhookSecret, time.Now()))
	assert.Equal(t, http.StatusOK, rec.Code)

	var count int64
	db.Model(&model.Order{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestWebhook_IrrelevantEventType_Ack(t *testing.T) {
	db := setupDB(t)

	e := echo.New()
	handler.NewPaymentHandler(nil, newUsecase(db), webhookSecret).RegisterRoutes(e)

	payload := []byte(`{"id": "evt_x", "type": "charge.refunded", "data": {"object": {"id": "pi_x"}}}`)

	rec := postWebhook(t, e, payload, payment.Sign(payload, webhookSecret, time.Now()))
	assert.Equal(t, http.StatusOK, rec.Code)
}
