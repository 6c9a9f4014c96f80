// Package web serves the public gift code redemption form and the
// logged in gift code page.
package web

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig configures Setup
type RouterConfig struct {
	Handler   *Handler
	Templates *template.Template
	RateLimit float64
	RateBurst int
	Logger    *zap.Logger
	// Development switches gin to debug mode
	Development bool
}

// Setup builds the gin engine serving the public pages
func Setup(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Logger(logger))
	r.Use(SecurityHeaders())

	r.SetHTMLTemplate(cfg.Templates)

	h := cfg.Handler
	r.GET("/", h.Index)
	r.POST("/", RateLimit(cfg.RateLimit, cfg.RateBurst), h.Redeem)
	r.GET("/success", h.Success)

	if h.loginEnabled() {
		r.GET("/login", h.Login)
		r.GET("/callback", h.Callback)
		r.GET("/gift-codes", h.GiftCodes)
		r.GET("/logout", h.Logout)
	}

	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "not found")
	})

	return r
}
