package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader       = "Stripe-Signature"
	EventPaymentSucceeded = "payment_intent.succeeded"

	//再生攻撃対策。これより古いタイムスタンプは拒否。
	signatureTolerance = 5 * time.Minute
)

var ErrInvalidSignature = errors.New("invalid signature")

// Event はWebhookの封筒。payment_intent.succeeded 以外は呼び出し側でno-op。
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object Confirmation `json:"object"`
	} `json:"data"`
}

func ParseEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode webhook payload: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("webhook payload missing type")
	}
	return ev, nil
}

// VerifySignature はヘッダー "t=<unix>,v1=<hex>" を共有シークレットで検証する。
// 署名対象は "<t>.<body>"。副作用の前に必ず呼ぶこと。
func VerifySignature(payload []byte, header string, secret string, now time.Time) error {
	if header == "" {
		return ErrInvalidSignature
	}

	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			ts = n
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrInvalidSignature
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrInvalidSignature
	}

	expected := computeSignature(payload, secret, ts)
	for _, sig := range sigs {
		got, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign はテストやローカル送信用に検証に通るヘッダー値を作る。
func Sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeSignature(payload, secret, ts)))
}

func computeSignature(payload []byte, secret string, ts int64) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return mac.Sum(nil)
}
