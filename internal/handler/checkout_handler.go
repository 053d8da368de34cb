package handler

import (
	"net/http"

	"fermar/internal/payment"
	"fermar/internal/usecase"

	"github.com/labstack/echo/v4"
)

type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/checkout", h.create)
}

type CheckoutRequest struct {
	ProductID  int64                   `json:"product_id"`
	Email      string                  `json:"email"`
	Phone      string                  `json:"phone"`
	Shipping   payment.ShippingAddress `json:"shipping_address"`
	Referencia string                  `json:"referencia"`
}

func (h *CheckoutHandler) create(c echo.Context) error {
	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.CreatePaymentIntent(c.Request().Context(), usecase.CheckoutInput{
		ProductID:  req.ProductID,
		Email:      req.Email,
		Phone:      req.Phone,
		Shipping:   req.Shipping,
		Referencia: req.Referencia,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}
