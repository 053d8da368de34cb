package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// 購入と無関係な決済イベント（metadata不足）はエラーではなくno-op扱い。
var ErrMissingMetadata = errors.New("missing metadata")

type ShippingAddress struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Metadata はプロセッサのmetadata bagを型にしたもの。
// adapter境界で一度だけ検証して、以降は型付きで扱う。
type Metadata struct {
	Email       string
	Phone       string
	ProductID   int64
	ProductName string
	Shipping    ShippingAddress
	Referencia  string
}

func ParseMetadata(raw map[string]string) (Metadata, error) {
	if len(raw) == 0 {
		return Metadata{}, ErrMissingMetadata
	}

	email := strings.TrimSpace(raw["email"])
	productID := strings.TrimSpace(raw["productId"])
	if email == "" || productID == "" {
		return Metadata{}, ErrMissingMetadata
	}

	id, err := strconv.ParseInt(productID, 10, 64)
	if err != nil || id <= 0 {
		return Metadata{}, fmt.Errorf("%w: bad productId %q", ErrMissingMetadata, productID)
	}

	m := Metadata{
		Email:       email,
		Phone:       strings.TrimSpace(raw["phone"]),
		ProductID:   id,
		ProductName: raw["productName"],
		Referencia:  raw["referencia"],
	}

	//配送先はJSONのサブドキュメント。壊れていても注文自体は通す（空で埋める）。
	if s := raw["shippingAddress"]; s != "" {
		_ = json.Unmarshal([]byte(s), &m.Shipping)
	}

	return m, nil
}
