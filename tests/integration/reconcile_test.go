package integration

import (
	"context"
	"testing"

	"fermar/internal/domain/model"
	infraRepo "fermar/internal/infra/repository"
	"fermar/internal/payment"
	repo "fermar/internal/repository"
	"fermar/internal/usecase"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqliteのin-memoryで本物のrepo + Txを回す。
// TranslateErrorで一意制約違反がgorm.ErrDuplicatedKeyになるのはPostgresと同じ。
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_fk=1"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&model.Product{}, &model.Order{}, &model.OrderItem{}))

	t.Cleanup(func() {
		db.Exec("DELETE FROM order_items")
		db.Exec("DELETE FROM orders")
		db.Exec("DELETE FROM products")
	})

	return db
}

func newUsecase(db *gorm.DB) *usecase.ReconcileUsecase {
	return usecase.NewReconcileUsecase(
		infraRepo.NewTxManagerGorm(db),
		infraRepo.NewOrderGormRepository(db),
		infraRepo.NewOrderItemGormRepository(db),
		infraRepo.NewProductGormRepository(db),
		nil, nil, "https://example.test",
	)
}

func seedProduct(t *testing.T, db *gorm.DB, stock int64, digital bool) model.Product {
	t.Helper()

	p := model.Product{
		Name:      "Cafetera " + uuid.NewString()[:8],
		Price:     decimal.RequireFromString("699.00"),
		Stock:     stock,
		IsActive:  true,
		IsDigital: digital,
	}
	if digital {
		p.DownloadURL = "guia.pdf"
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func input(ref string, productID int64) usecase.MaterializeInput {
	return usecase.MaterializeInput{
		PaymentReference: ref,
		Amount:           decimal.RequireFromString("699.00"),
		Meta: payment.Metadata{
			Email:     "buyer@example.com",
			ProductID: productID,
			Shipping:  payment.ShippingAddress{Line1: "Av. Siempre Viva 742"},
		},
	}
}

func TestMaterialize_CreatesOrderWithItem(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 3, false)
	uc := newUsecase(db)
	ref := "pi_" + uuid.NewString()

	out, err := uc.Materialize(context.Background(), input(ref, p.ID))
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, "pending", out.Order.Status)
	assert.True(t, out.Order.TotalAmount.Equal(decimal.RequireFromString("699.00")))
	require.Equal(t, 1, len(out.Order.Items))
	assert.Equal(t, p.ID, out.Order.Items[0].ProductID)
	assert.True(t, out.Order.Items[0].Price.Equal(p.Price))

	//DBにも1件だけ
	var count int64
	db.Model(&model.Order{}).Where("payment_reference = ?", ref).Count(&count)
	assert.Equal(t, int64(1), count)

	//在庫は1減る
	var got model.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, int64(2), got.Stock)
}

func TestMaterialize_SameReferenceTwice_OneOrder(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 3, false)
	uc := newUsecase(db)
	ref := "pi_" + uuid.NewString()

	first, err := uc.Materialize(context.Background(), input(ref, p.ID))
	require.NoError(t, err)
	require.True(t, first.Created)

	//verify後にwebhookが同じ参照で届いたのと同じ
	second, err := uc.Materialize(context.Background(), input(ref, p.ID))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	var itemCount int64
	db.Model(&model.OrderItem{}).Where("order_id = ?", first.Order.ID).Count(&itemCount)
	assert.Equal(t, int64(1), itemCount)

	//在庫は1回分しか減らない
	var got model.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, int64(2), got.Stock)
}

func TestMaterialize_DistinctReferences_DecrementTwice(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 3, false)
	uc := newUsecase(db)

	_, err := uc.Materialize(context.Background(), input("pi_"+uuid.NewString(), p.ID))
	require.NoError(t, err)
	_, err = uc.Materialize(context.Background(), input("pi_"+uuid.NewString(), p.ID))
	require.NoError(t, err)

	var got model.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, int64(1), got.Stock)
}

func TestMaterialize_LastUnit_ThenOutOfStock(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 1, false)
	uc := newUsecase(db)

	out, err := uc.Materialize(context.Background(), input("pi_"+uuid.NewString(), p.ID))
	require.NoError(t, err)
	assert.True(t, out.Created)

	//在庫0での新規参照は409。注文は作られずロールバックされる
	_, err = uc.Materialize(context.Background(), input("pi_"+uuid.NewString(), p.ID))
	require.Error(t, err)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, 409, he.Status)

	var orderCount int64
	db.Model(&model.Order{}).Count(&orderCount)
	assert.Equal(t, int64(1), orderCount)

	var got model.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, int64(0), got.Stock)
}

func TestMaterialize_Digital_StockUntouched(t *testing.T) {
	db := setupDB(t)
	p := seedProduct(t, db, 0, true)
	uc := newUsecase(db)

	out, err := uc.Materialize(context.Background(), input("pi_"+uuid.NewString(), p.ID))
	require.NoError(t, err)
	assert.True(t, out.Created)
	require.NotNil(t, out.Product)
	assert.True(t, out.Product.IsDigital)

	var got model.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, int64(0), got.Stock)
}

func TestMaterialize_UnknownProduct_NotFound(t *testing.T) {
	db := setupDB(t)
	uc := newUsecase(db)

	_, err := uc.Materialize(context.Background(), input("pi_"+uuid.NewString(), 9999))
	require.Error(t, err)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, 404, he.Status)
}

func TestDuplicateReference_RepositoryLevel(t *testing.T) {
	db := setupDB(t)
	orders := infraRepo.NewOrderGormRepository(db)
	ref := "pi_" + uuid.NewString()

	o := model.Order{
		ContactEmail:     "buyer@example.com",
		Status:           model.OrderStatusPending,
		TotalAmount:      decimal.RequireFromString("699.00"),
		PaymentReference: ref,
	}

	_, err := orders.Create(context.Background(), o)
	require.NoError(t, err)

	//同じ参照の2回目は一意制約で弾かれ、番兵エラーに変換される
	_, err = orders.Create(context.Background(), o)
	assert.ErrorIs(t, err, repo.ErrDuplicateKey)
}
