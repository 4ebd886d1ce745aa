package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/care-engine/generic"
)

// =============================================================================
// REPOSITORY - Persistence interface
// =============================================================================

// Filter narrows ListScheduledPackages. Empty fields match everything.
type Filter struct {
	CustomerID  string
	CaregiverID string
}

// Repository persists scheduled packages.
//
// UpdateScheduledPackage is the only way the service mutates a stored
// package: the implementation loads, calls fn and saves atomically. If fn
// returns an error nothing is written.
type Repository interface {
	SaveScheduledPackage(ctx context.Context, p ScheduledPackage) error
	GetScheduledPackage(ctx context.Context, id string) (ScheduledPackage, error)
	ListScheduledPackages(ctx context.Context, filter Filter) ([]ScheduledPackage, error)
	UpdateScheduledPackage(ctx context.Context, id string, fn func(*ScheduledPackage) error) (ScheduledPackage, error)
}

// =============================================================================
// SERVICE - Rule lifecycle with transactional guarantees
// =============================================================================

type Service struct {
	Store Repository
}

func NewService(store Repository) *Service {
	return &Service{Store: store}
}

// Create validates and stores a new package. An empty ID is generated.
func (s *Service) Create(ctx context.Context, p ScheduledPackage) (ScheduledPackage, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	if p.Status != StatusActive {
		return ScheduledPackage{}, generic.NewValidationError("status", "new packages start active")
	}
	if err := p.Validate(); err != nil {
		return ScheduledPackage{}, err
	}
	if err := s.Store.SaveScheduledPackage(ctx, p); err != nil {
		return ScheduledPackage{}, fmt.Errorf("save scheduled package: %w", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (ScheduledPackage, error) {
	return s.Store.GetScheduledPackage(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]ScheduledPackage, error) {
	return s.Store.ListScheduledPackages(ctx, filter)
}

// Occurrences expands the stored package over [from, to].
func (s *Service) Occurrences(ctx context.Context, id string, from, to generic.Date) ([]Occurrence, error) {
	p, err := s.Store.GetScheduledPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	return Occurrences(p, from, to)
}

func (s *Service) AddException(ctx context.Context, id string, date generic.Date, act ExceptionAction, newStart *time.Time) (ScheduledPackage, error) {
	return s.Store.UpdateScheduledPackage(ctx, id, func(p *ScheduledPackage) error {
		return p.AddException(date, act, newStart)
	})
}

func (s *Service) RemoveException(ctx context.Context, id string, date generic.Date) (ScheduledPackage, error) {
	return s.Store.UpdateScheduledPackage(ctx, id, func(p *ScheduledPackage) error {
		return p.RemoveException(date)
	})
}

func (s *Service) Pause(ctx context.Context, id string) (ScheduledPackage, error) {
	return s.Store.UpdateScheduledPackage(ctx, id, (*ScheduledPackage).Pause)
}

func (s *Service) Resume(ctx context.Context, id string) (ScheduledPackage, error) {
	return s.Store.UpdateScheduledPackage(ctx, id, (*ScheduledPackage).Resume)
}

func (s *Service) Cancel(ctx context.Context, id string) (ScheduledPackage, error) {
	return s.Store.UpdateScheduledPackage(ctx, id, (*ScheduledPackage).Cancel)
}
