package repository

import (
	"context"
	"errors"
	"time"

	"fermar/internal/domain/model"
)

// payment_referenceの一意制約に当たったとき。
// 呼び出し側はトランザクションの外で再検索して既存注文を返す。
var ErrDuplicateKey = errors.New("duplicate key")

type OrderListFilter struct {
	Page   int
	Limit  int
	Status string
	Email  string
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	Create(ctx context.Context, order model.Order) (int64, error)
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus, deliveredAt *time.Time) error

	//検索（同じ決済参照なら同じ注文を返す）
	FindByPaymentReference(ctx context.Context, ref string) (model.Order, bool, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f OrderListFilter) ([]model.Order, int64, error)
}
