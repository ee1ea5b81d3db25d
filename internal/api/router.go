package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"parcel-locker-backend/config"
	"parcel-locker-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(
		mw.NewLimiters(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, 10*time.Minute),
		mw.ByClientIP,
	)
	passwordLimiter := mw.RateLimiter(
		mw.NewLimiters(passwordRate(cfg.PasswordAttemptsPerMinute), cfg.PasswordAttemptBurst, time.Hour),
		mw.ByClientIP,
	)

	responses := mw.NewResponseCache(time.Duration(cfg.CacheTTLSeconds) * time.Second)
	caching := responses.Serve()

	api := r.Group("/api")
	api.Use(rateLimiter, responses.Invalidate())
	{
		api.POST("/reservations", handler.CreateReservation)
		api.POST("/reservations/:id/confirm", handler.ConfirmReservation)
		api.POST("/reservations/operator-confirm", passwordLimiter, handler.OperatorConfirm)
		api.POST("/reservations/cancel", passwordLimiter, handler.CancelReservation)

		api.GET("/locker", passwordLimiter, handler.GetLocker)
		api.POST("/locker/open", passwordLimiter, handler.OpenLocker)

		api.GET("/stations", caching, handler.GetStations)
		api.GET("/stations/:id", caching, handler.GetStation)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}

func passwordRate(perMinute int) rate.Limit {
	if perMinute <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(perMinute))
}
