package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/mroshb/rallypoint/internal/config"
	"github.com/mroshb/rallypoint/internal/middleware"
	"github.com/mroshb/rallypoint/internal/services"
	"gorm.io/gorm"
)

type HandlerManager struct {
	Config    *config.Config
	DB        *gorm.DB
	Movements *services.MovementService
	Waves     *services.WaveService
	Limiter   *middleware.RateLimiter
}

func NewHandlerManager(
	cfg *config.Config,
	db *gorm.DB,
	movements *services.MovementService,
	waves *services.WaveService,
	limiter *middleware.RateLimiter,
) *HandlerManager {
	return &HandlerManager{
		Config:    cfg,
		DB:        db,
		Movements: movements,
		Waves:     waves,
		Limiter:   limiter,
	}
}

// NewServer builds the echo instance with every route mounted.
func (h *HandlerManager) NewServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = HTTPErrorHandler
	e.Use(echomw.Recover())
	e.Use(RequestLogger())

	e.GET("/healthz", h.Health)

	api := e.Group("/api/v1", middleware.Auth(h.Config.JWTSecret))
	if h.Limiter != nil {
		api.Use(middleware.RateLimit(h.Limiter))
	}
	api.POST("/missions", h.SendMission)
	api.POST("/waves", h.SendWave)
	api.POST("/reinforcements/recall", h.RecallReinforcements)
	api.POST("/movements/:id/cancel", h.CancelMovement)
	api.GET("/movements/:id", h.GetMovement)
	api.GET("/villages/:id/movements", h.ListVillageMovements)
	api.GET("/reports", h.ListReports)
	api.GET("/reports/:id", h.GetReport)
	return e
}

func (h *HandlerManager) Health(c echo.Context) error {
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request().Context())
	}
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
