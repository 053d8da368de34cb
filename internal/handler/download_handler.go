package handler

import (
	"net/http"
	"os"
	"strconv"

	"fermar/internal/usecase"

	"github.com/labstack/echo/v4"
)

type DownloadHandler struct {
	uc     *usecase.DownloadUsecase
	tokens *usecase.DownloadTokenIssuer
}

func NewDownloadHandler(uc *usecase.DownloadUsecase, tokens *usecase.DownloadTokenIssuer) *DownloadHandler {
	return &DownloadHandler{uc: uc, tokens: tokens}
}

func (h *DownloadHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/download", h.download)
}

func (h *DownloadHandler) download(c echo.Context) error {
	var orderID, productID int64

	//署名付きトークン優先。なければ明示的なID指定。
	if tok := c.QueryParam("token"); tok != "" {
		oid, pid, err := h.tokens.Parse(tok)
		if err != nil {
			return writeError(c, err)
		}
		orderID, productID = oid, pid
	} else {
		var err error
		orderID, err = strconv.ParseInt(c.QueryParam("order_id"), 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order_id"})
		}
		productID, err = strconv.ParseInt(c.QueryParam("product_id"), 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
		}
	}

	grant, err := h.uc.Authorize(c.Request().Context(), orderID, productID)
	if err != nil {
		return writeError(c, err)
	}

	if _, err := os.Stat(grant.FilePath); err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "download file not found"})
	}

	return c.Attachment(grant.FilePath, grant.FileName)
}
