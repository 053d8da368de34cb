package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Order は決済照合（reconciliation）が作る注文。
// PaymentReferenceの一意制約が二重作成の最後の防衛線。
type Order struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//ゲスト購入の連絡先
	ContactEmail string `gorm:"type:varchar(255);not null;index" json:"contact_email"`
	ContactPhone string `gorm:"type:varchar(50);not null" json:"contact_phone"`

	//配送先（デジタル商品のみの注文は空文字でよい）
	ShippingAddress    string `gorm:"type:varchar(255);not null" json:"shipping_address"`
	ShippingCity       string `gorm:"type:varchar(100);not null" json:"shipping_city"`
	ShippingState      string `gorm:"type:varchar(100);not null" json:"shipping_state"`
	ShippingZipCode    string `gorm:"type:varchar(20);not null" json:"shipping_zip_code"`
	ShippingCountry    string `gorm:"type:varchar(100);not null" json:"shipping_country"`
	ShippingReferencia string `gorm:"type:varchar(255)" json:"shipping_referencia"`

	Status           OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_amount"`
	PaymentReference string          `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}
