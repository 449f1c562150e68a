package server

import (
	"net/http"

	"market-data-server/src/helpers"
	"market-data-server/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Tracking API
// -----------------------------------------------------------------------------

func (s *FastAPIServer) listTracked(c *gin.Context) {
	list, err := s.Tracking.List(c.Request.Context())
	if err != nil {
		s.fail(c, "tracking list", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(list))
}

func (s *FastAPIServer) addTracked(c *gin.Context) {
	var req models.MAddStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, "tracking add", helpers.NewValidationError("%v", err))
		return
	}
	stock, err := s.Tracking.Add(c.Request.Context(), req)
	if err != nil {
		s.fail(c, "tracking add", err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

func (s *FastAPIServer) syncTracked(c *gin.Context) {
	var req models.MSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, "tracking sync", helpers.NewValidationError("%v", err))
		return
	}
	res, err := s.Tracking.Sync(c.Request.Context(), req.Stocks)
	if err != nil {
		s.fail(c, "tracking sync", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *FastAPIServer) removeTracked(c *gin.Context) {
	ticker := c.Param("ticker")
	removed, err := s.Tracking.Remove(c.Request.Context(), ticker)
	if err != nil {
		s.fail(c, "tracking remove", err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Stock not found in tracking"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Removed " + models.BaseTicker(upstreamSymbol(ticker)) + " from tracking"})
}

func (s *FastAPIServer) trackingStatus(c *gin.Context) {
	status, err := s.Tracking.Status(c.Request.Context())
	if err != nil {
		s.fail(c, "tracking status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}
