// Package cosmetic owns the cosmetic inventory: granting catalog items to
// players and equipping one item per slot.
package cosmetic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/logger"
)

// Store is the persistence the service needs. *sqlite.CosmeticRepo
// satisfies it.
type Store interface {
	GetCosmetic(ctx context.Context, id string) (*domain.Cosmetic, error)
	GrantCosmetic(ctx context.Context, userID, cosmeticID, source string, now time.Time) (bool, error)
	OwnsCosmetic(ctx context.Context, userID, cosmeticID string) (bool, error)
	ListUserCosmetics(ctx context.Context, userID string) ([]*domain.OwnedCosmetic, error)
	Equip(ctx context.Context, userID, cosmeticID string, kind domain.CosmeticKind) error
}

// Service implements domain.CosmeticGranter.
type Service struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

var _ domain.CosmeticGranter = (*Service)(nil)

// NewService creates a cosmetic service.
func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log.With("service", "cosmetics"), now: time.Now}
}

// GrantCosmetic puts cosmeticID in userID's inventory. Returns false when
// the id is not in the catalog. Granting an owned item succeeds without
// changing it.
func (s *Service) GrantCosmetic(ctx context.Context, userID, cosmeticID, source string) (bool, error) {
	c, err := s.store.GetCosmetic(ctx, cosmeticID)
	if err != nil {
		return false, fmt.Errorf("get cosmetic: %w", err)
	}
	if c == nil {
		s.log.Warn("grant of unknown cosmetic", "user_id", userID, "cosmetic_id", cosmeticID)
		return false, nil
	}
	added, err := s.store.GrantCosmetic(ctx, userID, c.ID, source, s.now())
	if err != nil {
		return false, err
	}
	if added {
		s.log.Info("cosmetic granted", "user_id", userID, "cosmetic_id", c.ID, "source", source)
	}
	return true, nil
}

// UserOwnsCosmetic reports whether userID owns cosmeticID.
func (s *Service) UserOwnsCosmetic(ctx context.Context, userID, cosmeticID string) (bool, error) {
	return s.store.OwnsCosmetic(ctx, userID, cosmeticID)
}

// EquipCosmetic equips an owned item, unequipping whatever held its slot.
// Returns false when the item is unknown or not owned.
func (s *Service) EquipCosmetic(ctx context.Context, userID, cosmeticID string) (bool, error) {
	c, err := s.store.GetCosmetic(ctx, cosmeticID)
	if err != nil {
		return false, fmt.Errorf("get cosmetic: %w", err)
	}
	if c == nil {
		return false, nil
	}
	err = s.store.Equip(ctx, userID, c.ID, c.Kind)
	if errors.Is(err, domain.ErrCosmeticNotOwned) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Inventory lists userID's cosmetics.
func (s *Service) Inventory(ctx context.Context, userID string) ([]*domain.OwnedCosmetic, error) {
	items, err := s.store.ListUserCosmetics(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cosmetics: %w", err)
	}
	return items, nil
}
