package repository

import (
	"context"

	"fermar/internal/domain/model"
)

type OrderItemRepository interface {
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)

	//ダウンロード許可の判定に使う（注文と商品の結びつき確認）
	FindByOrderAndProduct(ctx context.Context, orderID int64, productID int64) (model.OrderItem, bool, error)
}
