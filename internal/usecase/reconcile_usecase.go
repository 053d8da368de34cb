package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"fermar/internal/domain/model"
	"fermar/internal/notification"
	"fermar/internal/payment"
	repo "fermar/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// 一意制約に負けた側の合図。呼び出し元でトランザクションの外から再検索する。
var errReferenceConflict = errors.New("payment reference conflict")

// ReconcileUsecase は支払い確認を「ちょうど1つの注文」に変換する。
// verify経路とwebhook経路の両方が、同じ決済参照でここを呼ぶ。
type ReconcileUsecase struct {
	tx       repo.TransactionManager
	orders   repo.OrderRepository
	items    repo.OrderItemRepository
	products repo.ProductRepository
	notifier notification.Notifier
	tokens   *DownloadTokenIssuer
	baseURL  string
}

func NewReconcileUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	items repo.OrderItemRepository,
	products repo.ProductRepository,
	notifier notification.Notifier,
	tokens *DownloadTokenIssuer,
	baseURL string,
) *ReconcileUsecase {
	return &ReconcileUsecase{
		tx:       tx,
		orders:   orders,
		items:    items,
		products: products,
		notifier: notifier,
		tokens:   tokens,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

type MaterializeInput struct {
	PaymentReference string
	Amount           decimal.Decimal
	Meta             payment.Metadata
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
}

type OrderOutput struct {
	ID           int64             `json:"id"`
	ContactEmail string            `json:"contact_email"`
	Status       string            `json:"status"`
	TotalAmount  decimal.Decimal   `json:"total_amount"`
	CreatedAt    time.Time         `json:"created_at"`
	Items        []OrderItemOutput `json:"items"`
}

// ProductAccessOutput は購入直後のアクセス情報（2回目の問い合わせを省くため）。
type ProductAccessOutput struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	IsDigital      bool   `json:"is_digital"`
	DownloadURL    string `json:"download_url,omitempty"`
	ActivationCode string `json:"activation_code,omitempty"`
}

type MaterializeOutput struct {
	Order   OrderOutput
	Created bool
	Product *ProductAccessOutput
}

// Materialize は決済参照ごとに注文を1つだけ作る（既にあればそれを返す）。
// 何回呼んでも、どちらの経路から呼んでも、結果は同じ注文。
func (u *ReconcileUsecase) Materialize(ctx context.Context, in MaterializeInput) (MaterializeOutput, error) {
	ref := strings.TrimSpace(in.PaymentReference)
	if ref == "" {
		return MaterializeOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment reference")
	}
	if in.Meta.ProductID <= 0 {
		return MaterializeOutput{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	//トランザクションを開く前の軽い存在チェック。
	//正しさはトランザクション内の再チェック＋一意制約で担保する。
	if existing, found, err := u.orders.FindByPaymentReference(ctx, ref); err == nil && found {
		return u.existingOutput(ctx, existing)
	}

	var (
		out     MaterializeOutput
		product model.Product
	)

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//もう一回チェック（verifyとwebhookの競合はここで片方が既存を見る）
		existing, found, err := r.Orders().FindByPaymentReference(ctx, ref)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if found {
			items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if len(items) > 0 {
				if p, err := r.Products().FindByID(ctx, items[0].ProductID); err == nil {
					product = p
				}
			}
			out = MaterializeOutput{Order: toOrderOutput(existing, items), Created: false}
			return nil
		}

		p, err := r.Products().FindByID(ctx, in.Meta.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "product not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		product = p

		//物理商品だけ在庫を減らす（相対更新、同一トランザクション内）
		if !p.IsDigital {
			ok, err := r.Inventory().DecrementStock(ctx, p.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !ok {
				return NewHTTPError(http.StatusConflict, "out of stock")
			}
		}

		now := time.Now()
		orderID, err := r.Orders().Create(ctx, model.Order{
			ContactEmail:       in.Meta.Email,
			ContactPhone:       in.Meta.Phone,
			ShippingAddress:    in.Meta.Shipping.Line1,
			ShippingCity:       in.Meta.Shipping.City,
			ShippingState:      in.Meta.Shipping.State,
			ShippingZipCode:    in.Meta.Shipping.PostalCode,
			ShippingCountry:    in.Meta.Shipping.Country,
			ShippingReferencia: in.Meta.Referencia,
			Status:             model.OrderStatusPending,
			TotalAmount:        in.Amount,
			PaymentReference:   ref,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if err != nil {
			if errors.Is(err, repo.ErrDuplicateKey) {
				//ステップ2と4の間に他のトランザクションが同じ参照でcommitした
				return errReferenceConflict
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		item := model.OrderItem{
			ProductID:           p.ID,
			Quantity:            1,
			PriceAtPurchase:     p.Price,
			ProductNameSnapshot: p.Name,
			CreatedAt:           now,
		}
		if err := r.OrderItems().CreateBulk(ctx, orderID, []model.OrderItem{item}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		created := model.Order{
			ID:           orderID,
			ContactEmail: in.Meta.Email,
			Status:       model.OrderStatusPending,
			TotalAmount:  in.Amount,
			CreatedAt:    now,
		}
		item.OrderID = orderID
		out = MaterializeOutput{Order: toOrderOutput(created, []model.OrderItem{item}), Created: true}
		return nil
	})

	if errors.Is(err, errReferenceConflict) {
		//失敗したトランザクションの外で引き直せば、勝った側の注文が見える
		existing, found, err2 := u.orders.FindByPaymentReference(ctx, ref)
		if err2 != nil || !found {
			return MaterializeOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return u.existingOutput(ctx, existing)
	}
	if err != nil {
		return MaterializeOutput{}, err
	}

	out.Product = u.productAccess(product, out.Order.ID)

	if out.Created {
		u.dispatchOrderCreated(out, product)
	}

	return out, nil
}

// 既存注文を出力形式に整える（作成しなかった側の戻り値）
func (u *ReconcileUsecase) existingOutput(ctx context.Context, o model.Order) (MaterializeOutput, error) {
	items, err := u.items.ListByOrderID(ctx, o.ID)
	if err != nil {
		return MaterializeOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	out := MaterializeOutput{Order: toOrderOutput(o, items), Created: false}

	if len(items) > 0 {
		if p, err := u.products.FindByID(ctx, items[0].ProductID); err == nil {
			out.Product = u.productAccess(p, o.ID)
		}
	}
	return out, nil
}

func (u *ReconcileUsecase) productAccess(p model.Product, orderID int64) *ProductAccessOutput {
	if p.ID == 0 {
		return nil
	}

	pa := &ProductAccessOutput{
		ID:        p.ID,
		Name:      p.Name,
		IsDigital: p.IsDigital,
	}

	if p.IsDigital && p.DownloadURL != "" {
		pa.ActivationCode = p.ActivationCode
		if u.tokens != nil {
			if tok, err := u.tokens.Issue(orderID, p.ID, time.Now()); err == nil {
				pa.DownloadURL = u.baseURL + "/download?token=" + tok
			} else {
				log.Error().Err(err).Int64("order_id", orderID).Msg("download token issue failed")
			}
		}
	}
	return pa
}

// 通知はcommit後のfire-and-forget。失敗しても注文の結果には影響しない。
func (u *ReconcileUsecase) dispatchOrderCreated(out MaterializeOutput, p model.Product) {
	if u.notifier == nil {
		return
	}

	in := notification.OrderCreatedInput{
		OrderID:     out.Order.ID,
		Email:       out.Order.ContactEmail,
		ProductName: p.Name,
		TotalAmount: out.Order.TotalAmount,
		IsDigital:   p.IsDigital,
	}
	if out.Product != nil {
		in.DownloadLink = out.Product.DownloadURL
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := u.notifier.OrderCreated(ctx, in); err != nil {
			log.Error().Err(err).Int64("order_id", in.OrderID).Msg("order notification failed")
		}
	}()
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.PriceAtPurchase,
			Quantity:  it.Quantity,
		})
	}

	return OrderOutput{
		ID:           o.ID,
		ContactEmail: o.ContactEmail,
		Status:       string(o.Status),
		TotalAmount:  o.TotalAmount,
		CreatedAt:    o.CreatedAt,
		Items:        outItems,
	}
}
