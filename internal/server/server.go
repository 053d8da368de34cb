package server

import (
	"net/http"

	"fermar/internal/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Router はルートを登録できるハンドラ。
type Router interface {
	RegisterRoutes(e *echo.Echo)
}

// New はechoインスタンスを組み立てて返す。
func New(cfg config.Config, routers ...Router) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.FEURL},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	for _, r := range routers {
		r.RegisterRoutes(e)
	}

	return e
}

// Start はサーバーを起動する。
func Start(e *echo.Echo, port string) error {
	addr := port
	if addr != "" && addr[0] != ':' {
		addr = ":" + addr
	}
	return e.Start(addr)
}
