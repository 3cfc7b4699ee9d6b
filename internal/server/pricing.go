package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	pricingservice "github.com/smallbiznis/metra/internal/pricing/service"
	"github.com/smallbiznis/metra/pkg/validation"
)

func (s *Server) ListPricingTiers(c *gin.Context) {
	serviceID, err := parseOptionalID("service_id", c.Query("service_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if serviceID == 0 {
		verrs := &validation.Errors{}
		verrs.Add("service_id", "is required")
		AbortWithError(c, verrs)
		return
	}

	tiers, err := s.pricingSvc.ListTiers(c.Request.Context(), serviceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tiers})
}

type createTierRequest struct {
	ServiceID      string     `json:"service_id"`
	TierOrder      int        `json:"tier_order"`
	MinQuantity    float64    `json:"min_quantity"`
	MaxQuantity    *float64   `json:"max_quantity,omitempty"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	EffectiveFrom  *time.Time `json:"effective_from,omitempty"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
	Force          bool       `json:"force,omitempty"`
}

func (s *Server) CreatePricingTier(c *gin.Context) {
	var req createTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	serviceID, err := parseID("service_id", req.ServiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.pricingSvc.SaveTier(c.Request.Context(), pricingservice.SaveTierRequest{
		ServiceID:      serviceID,
		TierOrder:      req.TierOrder,
		MinQuantity:    req.MinQuantity,
		MaxQuantity:    req.MaxQuantity,
		UnitPriceCents: req.UnitPriceCents,
		EffectiveFrom:  req.EffectiveFrom,
		EffectiveUntil: req.EffectiveUntil,
		Force:          req.Force,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": result})
}

type updateTierRequest struct {
	TierOrder      *int       `json:"tier_order,omitempty"`
	MinQuantity    *float64   `json:"min_quantity,omitempty"`
	MaxQuantity    *float64   `json:"max_quantity,omitempty"`
	ClearMax       bool       `json:"clear_max,omitempty"`
	UnitPriceCents *int64     `json:"unit_price_cents,omitempty"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
	Force          bool       `json:"force,omitempty"`
}

func (s *Server) UpdatePricingTier(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req updateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.pricingSvc.UpdateTier(c.Request.Context(), pricingservice.UpdateTierRequest{
		ID:             id,
		TierOrder:      req.TierOrder,
		MinQuantity:    req.MinQuantity,
		MaxQuantity:    req.MaxQuantity,
		ClearMax:       req.ClearMax,
		UnitPriceCents: req.UnitPriceCents,
		EffectiveUntil: req.EffectiveUntil,
		Force:          req.Force,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) DeletePricingTier(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	gaps, err := s.pricingSvc.DeleteTier(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true, "gaps": gaps}})
}
