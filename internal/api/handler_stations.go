package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStations handles GET /api/stations.
func (h *Handler) GetStations(c *gin.Context) {
	views, err := h.svc.Stations(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stations": views})
}

// GetStation handles GET /api/stations/:id, where id is the station name.
func (h *Handler) GetStation(c *gin.Context) {
	view, err := h.svc.Station(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"station": view})
}
