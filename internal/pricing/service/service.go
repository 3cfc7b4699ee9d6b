package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/clock"
	directorydomain "github.com/smallbiznis/metra/internal/directory/domain"
	"github.com/smallbiznis/metra/internal/pricing/domain"
	"github.com/smallbiznis/metra/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service manages tier schedules and prices consumption for invoice export.
type Service struct {
	db        *gorm.DB
	repo      domain.Repository
	directory directorydomain.Repository
	node      *snowflake.Node
	clock     clock.Clock
	log       *zap.Logger
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Repo      domain.Repository
	Directory directorydomain.Repository
	Node      *snowflake.Node
	Clock     clock.Clock
	Logger    *zap.Logger
}

func New(p Params) *Service {
	return &Service{
		db:        p.DB,
		repo:      p.Repo,
		directory: p.Directory,
		node:      p.Node,
		clock:     p.Clock,
		log:       p.Logger.Named("pricing.service"),
	}
}

// SaveTierRequest adds one band to a service's schedule. Force lets the
// caller accept a schedule left without an unbounded top band.
type SaveTierRequest struct {
	ServiceID      snowflake.ID
	TierOrder      int
	MinQuantity    float64
	MaxQuantity    *float64
	UnitPriceCents int64
	EffectiveFrom  *time.Time
	EffectiveUntil *time.Time
	Force          bool
}

// SaveTierResult carries the stored tier plus coverage gaps of the
// post-write schedule.
type SaveTierResult struct {
	Tier *domain.PricingTier `json:"tier"`
	Gaps []domain.Gap        `json:"gaps,omitempty"`
}

// SaveTier validates the candidate band against the service's effective
// schedule and stores it. Overlaps always reject the write. A write that
// would leave the schedule without an unbounded top band is rejected unless
// forced; bounded gaps are stored and reported.
func (s *Service) SaveTier(ctx context.Context, req SaveTierRequest) (*SaveTierResult, error) {
	if verr := validateTierRequest(req); verr != nil {
		return nil, verr
	}
	if _, err := s.directory.GetService(ctx, s.db, req.ServiceID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	effectiveFrom := now
	if req.EffectiveFrom != nil {
		effectiveFrom = *req.EffectiveFrom
	}
	tier := &domain.PricingTier{
		ID:             s.node.Generate(),
		ServiceID:      req.ServiceID,
		TierOrder:      req.TierOrder,
		MinQuantity:    req.MinQuantity,
		MaxQuantity:    req.MaxQuantity,
		UnitPriceCents: req.UnitPriceCents,
		EffectiveFrom:  effectiveFrom,
		EffectiveUntil: req.EffectiveUntil,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var gaps []domain.Gap
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.ListEffective(ctx, tx, req.ServiceID, now)
		if err != nil {
			return err
		}

		after := make([]domain.PricingTier, 0, len(existing)+1)
		after = append(after, existing...)
		if tier.EffectiveAt(now) {
			after = append(after, *tier)
		}

		if overlaps := domain.FindOverlaps(after); len(overlaps) > 0 {
			return domain.OverlapError(overlaps)
		}
		gaps = domain.FindGaps(after)
		if introducesUnboundedGap(existing, gaps) && !req.Force {
			return domain.ErrScheduleUncovered
		}
		return s.repo.Insert(ctx, tx, tier)
	})
	if err != nil {
		return nil, err
	}

	s.logGaps(req.ServiceID, gaps)
	return &SaveTierResult{Tier: tier, Gaps: gaps}, nil
}

// UpdateTierRequest edits an existing band; nil fields are left untouched.
type UpdateTierRequest struct {
	ID             snowflake.ID
	TierOrder      *int
	MinQuantity    *float64
	MaxQuantity    *float64
	ClearMax       bool
	UnitPriceCents *int64
	EffectiveUntil *time.Time
	Force          bool
}

// UpdateTier re-runs the validator against the schedule as it would be
// after the edit, with the same overlap/gap policy as SaveTier.
func (s *Service) UpdateTier(ctx context.Context, req UpdateTierRequest) (*SaveTierResult, error) {
	now := s.clock.Now()

	var updated *domain.PricingTier
	var gaps []domain.Gap
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tier, err := s.repo.Get(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if req.TierOrder != nil {
			tier.TierOrder = *req.TierOrder
		}
		if req.MinQuantity != nil {
			tier.MinQuantity = *req.MinQuantity
		}
		if req.ClearMax {
			tier.MaxQuantity = nil
		} else if req.MaxQuantity != nil {
			tier.MaxQuantity = req.MaxQuantity
		}
		if req.UnitPriceCents != nil {
			tier.UnitPriceCents = *req.UnitPriceCents
		}
		if req.EffectiveUntil != nil {
			tier.EffectiveUntil = req.EffectiveUntil
		}
		tier.UpdatedAt = now

		if verr := validateTierBounds(tier); verr != nil {
			return verr
		}

		existing, err := s.repo.ListEffective(ctx, tx, tier.ServiceID, now)
		if err != nil {
			return err
		}
		after := make([]domain.PricingTier, 0, len(existing))
		for _, t := range existing {
			if t.ID != tier.ID {
				after = append(after, t)
			}
		}
		if tier.EffectiveAt(now) {
			after = append(after, *tier)
		}

		if overlaps := domain.FindOverlaps(after); len(overlaps) > 0 {
			return domain.OverlapError(overlaps)
		}
		gaps = domain.FindGaps(after)
		if introducesUnboundedGap(existing, gaps) && !req.Force {
			return domain.ErrScheduleUncovered
		}

		updated = tier
		return s.repo.Update(ctx, tx, tier)
	})
	if err != nil {
		return nil, err
	}

	s.logGaps(updated.ServiceID, gaps)
	return &SaveTierResult{Tier: updated, Gaps: gaps}, nil
}

// DeleteTier deactivates a band and reports the coverage of what remains.
func (s *Service) DeleteTier(ctx context.Context, id snowflake.ID) ([]domain.Gap, error) {
	now := s.clock.Now()

	var gaps []domain.Gap
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tier, err := s.repo.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Deactivate(ctx, tx, id, now); err != nil {
			return err
		}
		remaining, err := s.repo.ListEffective(ctx, tx, tier.ServiceID, now)
		if err != nil {
			return err
		}
		gaps = domain.FindGaps(remaining)
		s.logGaps(tier.ServiceID, gaps)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return gaps, nil
}

// ListTiers returns the full schedule for a service.
func (s *Service) ListTiers(ctx context.Context, serviceID snowflake.ID) ([]domain.PricingTier, error) {
	if _, err := s.directory.GetService(ctx, s.db, serviceID); err != nil {
		return nil, err
	}
	return s.repo.ListByService(ctx, s.db, serviceID)
}

// PriceConsumption prices a consumed quantity against the schedule
// effective now, inside the caller's transaction.
func (s *Service) PriceConsumption(ctx context.Context, tx *gorm.DB, serviceID snowflake.ID, consumed float64) (int64, error) {
	conn := tx
	if conn == nil {
		conn = s.db
	}
	tiers, err := s.repo.ListEffective(ctx, conn, serviceID, s.clock.Now())
	if err != nil {
		return 0, err
	}
	return domain.Amount(tiers, consumed), nil
}

func (s *Service) logGaps(serviceID snowflake.ID, gaps []domain.Gap) {
	for _, g := range gaps {
		s.log.Warn("tier schedule gap",
			zap.String("service_id", serviceID.String()),
			zap.String("range", g.String()),
		)
	}
}

// introducesUnboundedGap reports whether the post-write schedule lost its
// unbounded top band while the pre-write schedule had one.
func introducesUnboundedGap(before []domain.PricingTier, afterGaps []domain.Gap) bool {
	hadTop := false
	for _, t := range before {
		if t.MaxQuantity == nil {
			hadTop = true
			break
		}
	}
	if !hadTop {
		return false
	}
	for _, g := range afterGaps {
		if g.Unbounded {
			return true
		}
	}
	return false
}

func validateTierRequest(req SaveTierRequest) error {
	verrs := &validation.Errors{}
	if req.MinQuantity < 0 {
		verrs.Add("min_quantity", "must not be negative")
	}
	if req.MaxQuantity != nil && *req.MaxQuantity < req.MinQuantity {
		verrs.Add("max_quantity", "must not be below min_quantity")
	}
	if req.UnitPriceCents < 0 {
		verrs.Add("unit_price_cents", "must not be negative")
	}
	if req.EffectiveFrom != nil && req.EffectiveUntil != nil && req.EffectiveUntil.Before(*req.EffectiveFrom) {
		verrs.Add("effective_until", "must not precede effective_from")
	}
	if verrs.HasErrors() {
		return verrs
	}
	return nil
}

func validateTierBounds(tier *domain.PricingTier) error {
	verrs := &validation.Errors{}
	if tier.MinQuantity < 0 {
		verrs.Add("min_quantity", "must not be negative")
	}
	if tier.MaxQuantity != nil && *tier.MaxQuantity < tier.MinQuantity {
		verrs.Add("max_quantity", "must not be below min_quantity")
	}
	if tier.UnitPriceCents < 0 {
		verrs.Add("unit_price_cents", "must not be negative")
	}
	if verrs.HasErrors() {
		return verrs
	}
	return nil
}
