package repository

import "context"

type InventoryRepository interface {
	// 在庫が残っているときだけ1減らす（相対更新）。
	// 0行更新なら false（在庫切れ）。デジタル商品には呼ばない。
	DecrementStock(ctx context.Context, productID int64) (bool, error)
}
