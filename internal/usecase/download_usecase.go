package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	repo "fermar/internal/repository"

	"github.com/golang-jwt/jwt/v5"
)

// DownloadUsecase はデジタル商品のダウンロード許可を判定する。
// 「注文と商品が結びついていて、その注文の決済照合が済んでいる」ことが条件。
type DownloadUsecase struct {
	orders   repo.OrderRepository
	items    repo.OrderItemRepository
	products repo.ProductRepository
	dir      string //ダウンロードファイル置き場
}

func NewDownloadUsecase(
	orders repo.OrderRepository,
	items repo.OrderItemRepository,
	products repo.ProductRepository,
	dir string,
) *DownloadUsecase {
	return &DownloadUsecase{orders: orders, items: items, products: products, dir: dir}
}

type DownloadGrant struct {
	FilePath string
	FileName string
}

func (u *DownloadUsecase) Authorize(ctx context.Context, orderID int64, productID int64) (DownloadGrant, error) {
	if orderID <= 0 || productID <= 0 {
		return DownloadGrant{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	//注文と商品の結びつき確認
	_, found, err := u.items.FindByOrderAndProduct(ctx, orderID, productID)
	if err != nil {
		return DownloadGrant{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !found {
		return DownloadGrant{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	//決済照合が済んだ注文だけ通す
	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return DownloadGrant{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return DownloadGrant{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if o.PaymentReference == "" {
		return DownloadGrant{}, NewHTTPError(http.StatusForbidden, "order payment not verified")
	}

	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return DownloadGrant{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return DownloadGrant{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.IsDigital || p.DownloadURL == "" {
		return DownloadGrant{}, NewHTTPError(http.StatusBadRequest, "product is not available for download")
	}

	//パス外参照防止のためファイル名だけ使う
	name := filepath.Base(p.DownloadURL)
	return DownloadGrant{
		FilePath: filepath.Join(u.dir, name),
		FileName: name,
	}, nil
}

// DownloadTokenIssuer はメール等に載せる署名付きダウンロードリンク用。
type DownloadTokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewDownloadTokenIssuer(secret string, ttl time.Duration) *DownloadTokenIssuer {
	return &DownloadTokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (i *DownloadTokenIssuer) Issue(orderID int64, productID int64, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"oid": orderID,
		"pid": productID,
		"iat": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(i.secret)
}

func (i *DownloadTokenIssuer) Parse(token string) (orderID int64, productID int64, err error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, 0, NewHTTPError(http.StatusForbidden, "invalid token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, 0, NewHTTPError(http.StatusForbidden, "invalid token")
	}

	oid, ok1 := claims["oid"].(float64)
	pid, ok2 := claims["pid"].(float64)
	if !ok1 || !ok2 {
		return 0, 0, NewHTTPError(http.StatusForbidden, "invalid token")
	}

	return int64(oid), int64(pid), nil
}
