package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/computeledger/internal/pricing/domain"
)

type presetResponse struct {
	ID                    snowflake.ID    `json:"id"`
	Name                  string          `json:"name"`
	Description           string          `json:"description,omitempty"`
	CPUMillicores         int64           `json:"cpu_millicores"`
	MemoryMB              int64           `json:"memory_mb"`
	Currency              string          `json:"currency"`
	MonthlyPrice          decimal.Decimal `json:"monthly_price"`
	HourlyPrice           decimal.Decimal `json:"hourly_price"`
	MaxAddonCPUMillicores int64           `json:"max_addon_cpu_millicores"`
	MaxAddonMemoryMB      int64           `json:"max_addon_memory_mb"`
	IsActive              bool            `json:"is_active"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func newPresetResponse(p pricingdomain.Preset) presetResponse {
	return presetResponse{
		ID:                    p.ID,
		Name:                  p.Name,
		Description:           p.Description,
		CPUMillicores:         p.CPUMillicores,
		MemoryMB:              p.MemoryMB,
		Currency:              p.Currency,
		MonthlyPrice:          p.MonthlyPrice,
		HourlyPrice:           p.HourlyPrice,
		MaxAddonCPUMillicores: p.MaxAddonCPUMillicores,
		MaxAddonMemoryMB:      p.MaxAddonMemoryMB,
		IsActive:              p.IsActive,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

type createPresetRequest struct {
	Name                  string          `json:"name"`
	Description           string          `json:"description"`
	CPUMillicores         int64           `json:"cpu_millicores"`
	MemoryMB              int64           `json:"memory_mb"`
	Currency              string          `json:"currency"`
	MonthlyPrice          decimal.Decimal `json:"monthly_price"`
	MaxAddonCPUMillicores int64           `json:"max_addon_cpu_millicores"`
	MaxAddonMemoryMB      int64           `json:"max_addon_memory_mb"`
}

type updatePresetPriceRequest struct {
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
}

type createAddonRateRequest struct {
	Currency               string          `json:"currency"`
	CPUMonthlyUnitPrice    decimal.Decimal `json:"cpu_monthly_unit_price"`
	MemoryMonthlyUnitPrice decimal.Decimal `json:"memory_monthly_unit_price"`
}

func (s *Server) ListPresets(c *gin.Context) {
	presets, err := s.pricingSvc.ListPresets(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]presetResponse, 0, len(presets))
	for _, p := range presets {
		items = append(items, newPresetResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetPreset(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	preset, err := s.pricingSvc.GetPreset(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newPresetResponse(*preset)})
}

// GetAddonRate returns the current per-unit hourly add-on prices.
func (s *Server) GetAddonRate(c *gin.Context) {
	rate, err := s.pricingSvc.AddonRate(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"currency":                 rate.Currency,
		"cpu_hourly_unit_price":    rate.CPUHourlyUnitPrice,
		"memory_hourly_unit_price": rate.MemoryHourlyUnitPrice,
	}})
}

func (s *Server) CreatePreset(c *gin.Context) {
	var req createPresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	preset, err := s.pricingSvc.CreatePreset(c.Request.Context(), pricingdomain.CreatePresetRequest{
		Name:                  req.Name,
		Description:           req.Description,
		CPUMillicores:         req.CPUMillicores,
		MemoryMB:              req.MemoryMB,
		Currency:              req.Currency,
		MonthlyPrice:          req.MonthlyPrice,
		MaxAddonCPUMillicores: req.MaxAddonCPUMillicores,
		MaxAddonMemoryMB:      req.MaxAddonMemoryMB,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": newPresetResponse(*preset)})
}

func (s *Server) UpdatePresetPrice(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req updatePresetPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	preset, err := s.pricingSvc.UpdatePresetPrice(c.Request.Context(), id, req.MonthlyPrice)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newPresetResponse(*preset)})
}

func (s *Server) ActivatePreset(c *gin.Context) {
	s.setPresetActive(c, true)
}

func (s *Server) DeactivatePreset(c *gin.Context) {
	s.setPresetActive(c, false)
}

func (s *Server) setPresetActive(c *gin.Context, active bool) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	preset, err := s.pricingSvc.SetPresetActive(c.Request.Context(), id, active)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newPresetResponse(*preset)})
}

func (s *Server) CreateAddonRate(c *gin.Context) {
	var req createAddonRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rate, err := s.pricingSvc.CreateAddonRate(c.Request.Context(), pricingdomain.CreateAddonRateRequest{
		Currency:               req.Currency,
		CPUMonthlyUnitPrice:    req.CPUMonthlyUnitPrice,
		MemoryMonthlyUnitPrice: req.MemoryMonthlyUnitPrice,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"id":                        rate.ID,
		"currency":                  rate.Currency,
		"cpu_monthly_unit_price":    rate.CPUMonthlyUnitPrice,
		"cpu_hourly_unit_price":     rate.CPUHourlyUnitPrice,
		"memory_monthly_unit_price": rate.MemoryMonthlyUnitPrice,
		"memory_hourly_unit_price":  rate.MemoryHourlyUnitPrice,
		"created_at":                rate.CreatedAt,
	}})
}
