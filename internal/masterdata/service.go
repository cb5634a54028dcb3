package masterdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bizdesk/bizdesk/internal/shared"
)

// Service manages customers and suppliers.
type Service struct {
	repo    Repository
	audit   shared.AuditPort
	lookups shared.CollectionInvalidator
	now     func() time.Time
}

// NewService builds Service. audit and lookups may be nil.
func NewService(repo Repository, audit shared.AuditPort, lookups shared.CollectionInvalidator) *Service {
	return &Service{repo: repo, audit: audit, lookups: lookups, now: time.Now}
}

// Create registers a new party.
func (s *Service) Create(ctx context.Context, kind Kind, req CreatePartyRequest) (Party, error) {
	if !kind.Valid() {
		return Party{}, fmt.Errorf("masterdata: unknown kind %q", kind)
	}
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if err := shared.Validate(req); err != nil {
		return Party{}, err
	}
	now := s.now().UTC()
	party := Party{
		ID:        uuid.New(),
		Kind:      kind,
		Code:      req.Code,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		TaxID:     req.TaxID,
		Address:   req.Address,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, party); err != nil {
		return Party{}, fmt.Errorf("create %s: %w", kind, err)
	}
	s.changed(ctx, party, "create")
	return party, nil
}

// Update applies the non-nil fields of req.
func (s *Service) Update(ctx context.Context, kind Kind, id uuid.UUID, req UpdatePartyRequest) (Party, error) {
	if err := shared.Validate(req); err != nil {
		return Party{}, err
	}
	party, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		return Party{}, err
	}
	if req.Name != nil {
		party.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		party.Email = *req.Email
	}
	if req.Phone != nil {
		party.Phone = *req.Phone
	}
	if req.TaxID != nil {
		party.TaxID = *req.TaxID
	}
	if req.Address != nil {
		party.Address = *req.Address
	}
	if req.IsActive != nil {
		party.IsActive = *req.IsActive
	}
	party.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, party); err != nil {
		return Party{}, fmt.Errorf("update %s: %w", kind, err)
	}
	s.changed(ctx, party, "update")
	return party, nil
}

// Deactivate hides a party from dropdowns while keeping its documents intact.
func (s *Service) Deactivate(ctx context.Context, kind Kind, id uuid.UUID) (Party, error) {
	inactive := false
	return s.Update(ctx, kind, id, UpdatePartyRequest{IsActive: &inactive})
}

// Get returns a single party.
func (s *Service) Get(ctx context.Context, kind Kind, id uuid.UUID) (Party, error) {
	return s.repo.Get(ctx, kind, id)
}

// List returns a page of parties ordered by name.
func (s *Service) List(ctx context.Context, kind Kind, filters ListFilters) ([]Party, int, error) {
	return s.repo.List(ctx, kind, filters)
}

func (s *Service) changed(ctx context.Context, p Party, action string) {
	if s.lookups != nil {
		s.lookups.Invalidate(ctx, p.Kind.Collection())
	}
	shared.RecordAudit(ctx, s.audit, shared.AuditLog{
		Action:   fmt.Sprintf("%s:%s", p.Kind, action),
		Entity:   p.Kind.table(),
		EntityID: p.ID.String(),
		Meta:     map[string]any{"code": p.Code, "name": p.Name, "active": p.IsActive},
	})
}
