package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem の snapshot系フィールドは作成後に変更しない。
// カタログを後から編集しても過去の注文は変わらない。
type OrderItem struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64           `gorm:"not null;index" json:"order_id"`
	Order               *Order          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ProductID           int64           `gorm:"not null;index" json:"product_id"`
	Quantity            int64           `gorm:"not null" json:"quantity"`
	PriceAtPurchase     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price_at_purchase"`
	ProductNameSnapshot string          `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	CreatedAt           time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}
