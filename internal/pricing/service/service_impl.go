package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/computeledger/internal/clock"
	pricingdomain "github.com/smallbiznis/computeledger/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultCacheSize = 512
	defaultCacheTTL  = time.Minute
	addonRateKey     = snowflake.ID(0)
)

// CacheConfig bounds the in-process catalog cache. A cached price only
// affects snapshots computed while it is held; written records keep the
// price they were computed with.
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

type Params struct {
	fx.In

	Repo   pricingdomain.Repository
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config CacheConfig `optional:"true"`
}

type Service struct {
	repo    pricingdomain.Repository
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	presets *expirable.LRU[snowflake.ID, pricingdomain.Preset]
	addons  *expirable.LRU[snowflake.ID, pricingdomain.AddonRate]
}

func NewService(p Params) pricingdomain.Service {
	size := p.Config.Size
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := p.Config.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		repo:    p.Repo,
		log:     p.Log.Named("pricing.service"),
		genID:   p.GenID,
		clock:   c,
		presets: expirable.NewLRU[snowflake.ID, pricingdomain.Preset](size, nil, ttl),
		addons:  expirable.NewLRU[snowflake.ID, pricingdomain.AddonRate](1, nil, ttl),
	}
}

func (s *Service) Preset(ctx context.Context, id snowflake.ID) (pricingdomain.PresetPrice, error) {
	preset, err := s.GetPreset(ctx, id)
	if err != nil {
		return pricingdomain.PresetPrice{}, err
	}
	return preset.Price(), nil
}

func (s *Service) AddonRate(ctx context.Context) (pricingdomain.AddonPrice, error) {
	if rate, ok := s.addons.Get(addonRateKey); ok {
		return rate.Price(), nil
	}
	rate, err := s.repo.CurrentAddonRate(ctx)
	if err != nil {
		return pricingdomain.AddonPrice{}, fmt.Errorf("load addon rate: %w", err)
	}
	if rate == nil {
		return pricingdomain.AddonPrice{}, pricingdomain.ErrAddonRateNotFound
	}
	s.addons.Add(addonRateKey, *rate)
	return rate.Price(), nil
}

func (s *Service) GetPreset(ctx context.Context, id snowflake.ID) (*pricingdomain.Preset, error) {
	if id == 0 {
		return nil, pricingdomain.ErrPresetNotFound
	}
	if preset, ok := s.presets.Get(id); ok {
		return &preset, nil
	}
	preset, err := s.repo.FindPreset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load preset: %w", err)
	}
	if preset == nil {
		return nil, pricingdomain.ErrPresetNotFound
	}
	s.presets.Add(id, *preset)
	return preset, nil
}

func (s *Service) ListPresets(ctx context.Context) ([]pricingdomain.Preset, error) {
	return s.repo.ListActivePresets(ctx)
}

func (s *Service) CreatePreset(ctx context.Context, req pricingdomain.CreatePresetRequest) (*pricingdomain.Preset, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pricingdomain.ErrInvalidName
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, pricingdomain.ErrInvalidCurrency
	}
	if req.CPUMillicores <= 0 || req.MemoryMB <= 0 || req.MaxAddonCPUMillicores < 0 || req.MaxAddonMemoryMB < 0 {
		return nil, pricingdomain.ErrInvalidResources
	}
	if req.MonthlyPrice.IsNegative() {
		return nil, pricingdomain.ErrInvalidPrice
	}

	now := s.clock.Now()
	preset := &pricingdomain.Preset{
		ID:                    s.genID.Generate(),
		Name:                  name,
		Description:           strings.TrimSpace(req.Description),
		CPUMillicores:         req.CPUMillicores,
		MemoryMB:              req.MemoryMB,
		Currency:              currency,
		MonthlyPrice:          req.MonthlyPrice,
		HourlyPrice:           pricingdomain.HourlyPrice(req.MonthlyPrice),
		MaxAddonCPUMillicores: req.MaxAddonCPUMillicores,
		MaxAddonMemoryMB:      req.MaxAddonMemoryMB,
		IsActive:              true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.InsertPreset(ctx, preset); err != nil {
		return nil, err
	}
	s.log.Info("preset created",
		zap.String("preset_id", preset.ID.String()),
		zap.String("monthly_price", preset.MonthlyPrice.String()),
		zap.String("hourly_price", preset.HourlyPrice.String()),
	)
	return preset, nil
}

// UpdatePresetPrice changes the list price for future periods only.
func (s *Service) UpdatePresetPrice(ctx context.Context, id snowflake.ID, monthly decimal.Decimal) (*pricingdomain.Preset, error) {
	if monthly.IsNegative() {
		return nil, pricingdomain.ErrInvalidPrice
	}
	preset, err := s.loadForWrite(ctx, id)
	if err != nil {
		return nil, err
	}
	preset.MonthlyPrice = monthly
	preset.HourlyPrice = pricingdomain.HourlyPrice(monthly)
	preset.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdatePreset(ctx, preset); err != nil {
		return nil, err
	}
	s.presets.Remove(id)
	return preset, nil
}

// SetPresetActive toggles availability for new deployments. Existing
// deployments on an inactive preset keep being billed at its price.
func (s *Service) SetPresetActive(ctx context.Context, id snowflake.ID, active bool) (*pricingdomain.Preset, error) {
	preset, err := s.loadForWrite(ctx, id)
	if err != nil {
		return nil, err
	}
	preset.IsActive = active
	preset.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdatePreset(ctx, preset); err != nil {
		return nil, err
	}
	s.presets.Remove(id)
	return preset, nil
}

func (s *Service) CreateAddonRate(ctx context.Context, req pricingdomain.CreateAddonRateRequest) (*pricingdomain.AddonRate, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, pricingdomain.ErrInvalidCurrency
	}
	if req.CPUMonthlyUnitPrice.IsNegative() || req.MemoryMonthlyUnitPrice.IsNegative() {
		return nil, pricingdomain.ErrInvalidPrice
	}
	now := s.clock.Now()
	rate := &pricingdomain.AddonRate{
		ID:                     s.genID.Generate(),
		Currency:               currency,
		CPUMonthlyUnitPrice:    req.CPUMonthlyUnitPrice,
		CPUHourlyUnitPrice:     pricingdomain.HourlyPrice(req.CPUMonthlyUnitPrice),
		MemoryMonthlyUnitPrice: req.MemoryMonthlyUnitPrice,
		MemoryHourlyUnitPrice:  pricingdomain.HourlyPrice(req.MemoryMonthlyUnitPrice),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.InsertAddonRate(ctx, rate); err != nil {
		return nil, err
	}
	s.addons.Purge()
	return rate, nil
}

func (s *Service) loadForWrite(ctx context.Context, id snowflake.ID) (*pricingdomain.Preset, error) {
	preset, err := s.repo.FindPreset(ctx, id)
	if err != nil {
		return nil, err
	}
	if preset == nil {
		return nil, pricingdomain.ErrPresetNotFound
	}
	return preset, nil
}
