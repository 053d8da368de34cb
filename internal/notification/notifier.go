package notification

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderCreatedInput は注文確定通知に必要な最低限の情報。
type OrderCreatedInput struct {
	OrderID      int64
	Email        string
	ProductName  string
	TotalAmount  decimal.Decimal
	IsDigital    bool
	DownloadLink string //デジタル商品のみ（署名付きURL）
}

// Notifier は購入者/オーナー通知の窓口。
// 失敗してもログに残すだけで、注文の結果には影響させない。
type Notifier interface {
	OrderCreated(ctx context.Context, in OrderCreatedInput) error
}
