package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLocker handles GET /api/locker?type=&password=.
func (h *Handler) GetLocker(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	party, err := req.party()
	if err != nil {
		abortWithError(c, err)
		return
	}

	view, err := h.svc.GetLocker(c.Request.Context(), party, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locker": view})
}

// OpenLocker handles POST /api/locker/open.
func (h *Handler) OpenLocker(c *gin.Context) {
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

	view, err := h.svc.Open(c.Request.Context(), party, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locker": view})
}
