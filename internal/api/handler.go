package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"parcel-locker-backend/internal/reservation"
	"parcel-locker-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc     *reservation.Service
	store   store.Store
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(svc *reservation.Service, s store.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		svc:     svc,
		store:   s,
		webpush: webpushOptions,
	}
}

// abortWithError maps service errors onto HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, reservation.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, reservation.ErrNotFound), errors.Is(err, store.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, reservation.ErrNotAvailable):
		status, msg = http.StatusConflict, "no locker available"
	case errors.Is(err, reservation.ErrConflict):
		status, msg = http.StatusConflict, "conflicting update, retry"
	case errors.Is(err, reservation.ErrTransport):
		status, msg = http.StatusBadGateway, "locker hardware unreachable"
	default:
		log.Printf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
