package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	assignmentdomain "github.com/smallbiznis/metra/internal/assignment/domain"
	"github.com/smallbiznis/metra/internal/clock"
	meterservice "github.com/smallbiznis/metra/internal/meter/service"
	"github.com/smallbiznis/metra/internal/observability/metrics"
	"github.com/smallbiznis/metra/internal/reading/domain"
	"github.com/smallbiznis/metra/pkg/db"
	"github.com/smallbiznis/metra/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service performs idempotent reading upserts.
type Service struct {
	db          *gorm.DB
	repo        domain.Repository
	assignments assignmentdomain.Repository
	meters      *meterservice.Service
	node        *snowflake.Node
	clock       clock.Clock
	metrics     *metrics.Metrics
	log         *zap.Logger
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Repo        domain.Repository
	Assignments assignmentdomain.Repository
	Meters      *meterservice.Service
	Node        *snowflake.Node
	Clock       clock.Clock
	Metrics     *metrics.Metrics `optional:"true"`
	Logger      *zap.Logger
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		repo:        p.Repo,
		assignments: p.Assignments,
		meters:      p.Meters,
		node:        p.Node,
		clock:       p.Clock,
		metrics:     p.Metrics,
		log:         p.Logger.Named("reading.service"),
	}
}

// SubmitRequest carries one reading for an assignment's meter.
type SubmitRequest struct {
	AssignmentID snowflake.ID
	MeterID      snowflake.ID
	ReadingDate  *time.Time
	CurrentIndex float64
	Note         string
}

// Submit upserts the reading keyed by (meter_id, assignment_id). A first
// submission inserts, computing prev_index from the meter's cached last
// reading; a resubmission edits the row in place, so sending the same
// value twice is a no-op. Both paths advance the meter's last-reading
// cache to the submitted index.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.MeterReading, error) {
	if verr := validateSubmit(req); verr != nil {
		return nil, verr
	}

	assignment, err := s.assignments.Get(ctx, s.db, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	meter, err := s.meters.Get(ctx, req.MeterID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	readingDate := now
	if req.ReadingDate != nil {
		readingDate = *req.ReadingDate
	}

	var result *domain.MeterReading
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByMeterAssignment(ctx, tx, req.MeterID, req.AssignmentID)
		if err == nil {
			existing.CurrentIndex = req.CurrentIndex
			existing.ReadingDate = readingDate
			existing.Note = req.Note
			existing.UpdatedAt = now
			result = existing
			if err := s.repo.Update(ctx, tx, existing); err != nil {
				return err
			}
			// a corrected index must also correct the meter cache, or the
			// next cycle's prev_index starts from the uncorrected value
			return s.meters.UpdateLastReading(ctx, tx, meter.ID, req.CurrentIndex, readingDate)
		}
		if err != domain.ErrReadingNotFound {
			return err
		}

		prevIndex := 0.0
		if meter.LastReading != nil {
			prevIndex = *meter.LastReading
		}
		reading := &domain.MeterReading{
			ID:           s.node.Generate(),
			MeterID:      req.MeterID,
			AssignmentID: req.AssignmentID,
			CycleID:      assignment.CycleID,
			UnitID:       meter.UnitID,
			ReadingDate:  readingDate,
			CurrentIndex: req.CurrentIndex,
			PrevIndex:    prevIndex,
			Note:         req.Note,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.Insert(ctx, tx, reading); err != nil {
			if db.IsDuplicateKeyErr(err) {
				// lost the insert race; fold into an edit of the winner
				winner, ferr := s.repo.FindByMeterAssignment(ctx, tx, req.MeterID, req.AssignmentID)
				if ferr != nil {
					return ferr
				}
				winner.CurrentIndex = req.CurrentIndex
				winner.ReadingDate = readingDate
				winner.Note = req.Note
				winner.UpdatedAt = now
				result = winner
				if err := s.repo.Update(ctx, tx, winner); err != nil {
					return err
				}
				return s.meters.UpdateLastReading(ctx, tx, meter.ID, req.CurrentIndex, readingDate)
			}
			return err
		}
		result = reading
		return s.meters.UpdateLastReading(ctx, tx, meter.ID, req.CurrentIndex, readingDate)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordReadingSubmitted(ctx, assignment.ServiceID.String())
	return result, nil
}

// SubmitForUnit handles a unit with no meter yet: the registry provisions
// one for the assignment's service, then the reading goes through the
// ordinary upsert.
func (s *Service) SubmitForUnit(ctx context.Context, assignmentID, unitID snowflake.ID, readingDate *time.Time, currentIndex float64, note string) (*domain.MeterReading, error) {
	assignment, err := s.assignments.Get(ctx, s.db, assignmentID)
	if err != nil {
		return nil, err
	}
	meter, err := s.meters.Ensure(ctx, nil, unitID, assignment.ServiceID)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, SubmitRequest{
		AssignmentID: assignmentID,
		MeterID:      meter.ID,
		ReadingDate:  readingDate,
		CurrentIndex: currentIndex,
		Note:         note,
	})
}

// BulkItem is one entry of a batch submission, keyed by meter or by unit.
type BulkItem struct {
	MeterID      snowflake.ID `json:"meter_id,omitempty"`
	UnitID       snowflake.ID `json:"unit_id,omitempty"`
	ReadingDate  *time.Time   `json:"reading_date,omitempty"`
	CurrentIndex float64      `json:"current_index"`
	Note         string       `json:"note,omitempty"`
}

// BulkItemResult reports one item's outcome.
type BulkItemResult struct {
	Index   int          `json:"index"`
	MeterID snowflake.ID `json:"meter_id,omitempty"`
	UnitID  snowflake.ID `json:"unit_id,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// BulkResult is the partial-success report of a batch submission.
type BulkResult struct {
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Items     []BulkItemResult `json:"items"`
}

// BulkSubmit fans the batch out as independent upserts, each in its own
// transaction. A failing item is recorded and never aborts the rest.
func (s *Service) BulkSubmit(ctx context.Context, assignmentID snowflake.ID, items []BulkItem) (*BulkResult, error) {
	if _, err := s.assignments.Get(ctx, s.db, assignmentID); err != nil {
		return nil, err
	}

	result := &BulkResult{Items: make([]BulkItemResult, 0, len(items))}
	for i, item := range items {
		itemResult := BulkItemResult{Index: i, MeterID: item.MeterID, UnitID: item.UnitID}

		var err error
		switch {
		case item.MeterID != 0:
			_, err = s.Submit(ctx, SubmitRequest{
				AssignmentID: assignmentID,
				MeterID:      item.MeterID,
				ReadingDate:  item.ReadingDate,
				CurrentIndex: item.CurrentIndex,
				Note:         item.Note,
			})
		case item.UnitID != 0:
			_, err = s.SubmitForUnit(ctx, assignmentID, item.UnitID, item.ReadingDate, item.CurrentIndex, item.Note)
		default:
			verrs := &validation.Errors{}
			verrs.Add("items", "either meter_id or unit_id is required")
			err = verrs
		}

		if err != nil {
			itemResult.Error = err.Error()
			result.Failed++
		} else {
			result.Succeeded++
		}
		result.Items = append(result.Items, itemResult)
	}

	s.log.Info("bulk submission finished",
		zap.String("assignment_id", assignmentID.String()),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// List returns readings filtered by cycle, unit and assignment.
func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.MeterReading, error) {
	return s.repo.List(ctx, s.db, filter)
}

func validateSubmit(req SubmitRequest) error {
	verrs := &validation.Errors{}
	if req.CurrentIndex < 0 {
		verrs.Add("current_index", "must not be negative")
	}
	if verrs.HasErrors() {
		return verrs
	}
	return nil
}
