package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parcel-locker-backend/internal/model"
	"parcel-locker-backend/internal/reservation"
	"parcel-locker-backend/internal/station"
)

// Dimensions is a parcel size in the same unit as locker sizes.
type Dimensions struct {
	Height float64 `json:"height" binding:"required,gt=0"`
	Width  float64 `json:"width" binding:"required,gt=0"`
	Depth  float64 `json:"depth" binding:"required,gt=0"`
}

type createReservationRequest struct {
	StationName   string `json:"station_name" binding:"required"`
	OperatorEmail string `json:"operator_email" binding:"required,email"`
	ClientEmail   string `json:"client_email" binding:"required,email"`
	CreatedBy     string `json:"created_by"`
	Dimensions
}

// ReservationResponse is the public view of a reservation. Passwords are
// only ever delivered by notification.
type ReservationResponse struct {
	ID          int64          `json:"id"`
	StationName string         `json:"station_name"`
	LockerID    int            `json:"locker_id"`
	Status      station.Status `json:"status"`
}

func newReservationResponse(r *model.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:          r.ID,
		StationName: r.StationName,
		LockerID:    r.LockerID,
		Status:      reservation.DeriveStatus(r),
	}
}

// CreateReservation handles POST /api/reservations.
func (h *Handler) CreateReservation(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	r, err := h.svc.Allocate(c.Request.Context(), reservation.AllocateRequest{
		StationName:   req.StationName,
		ClientEmail:   req.ClientEmail,
		OperatorEmail: req.OperatorEmail,
		CreatedBy:     req.CreatedBy,
		Height:        req.Height,
		Width:         req.Width,
		Depth:         req.Depth,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"reservation": newReservationResponse(r)})
}

// ConfirmReservation handles POST /api/reservations/:id/confirm.
func (h *Handler) ConfirmReservation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid reservation ID"})
		return
	}

	r, err := h.svc.ConfirmClient(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservation": newReservationResponse(r)})
}

type operatorConfirmRequest struct {
	Password string `json:"password" binding:"required"`
	Dimensions
}

// OperatorConfirm handles POST /api/reservations/operator-confirm. A parcel
// that fits nowhere is a 200 with expired set.
func (h *Handler) OperatorConfirm(c *gin.Context) {
	var req operatorConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.svc.ConfirmOperator(c.Request.Context(), req.Password, req.Height, req.Width, req.Depth)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type passwordRequest struct {
	Type     string `json:"type" form:"type" binding:"required,oneof=client operator"`
	Password string `json:"password" form:"password" binding:"required"`
}

func (r passwordRequest) party() (reservation.Party, error) {
	return reservation.ParseParty(r.Type)
}

// CancelReservation handles POST /api/reservations/cancel.
func (h *Handler) CancelReservation(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	party, err := req.party()
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := h.svc.Cancel(c.Request.Context(), party, req.Password); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
