package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blockrush/blockrush/internal/domain"
)

// CosmeticRepo stores the cosmetic catalog and user inventories.
type CosmeticRepo struct {
	db *sql.DB
}

// AddCosmetic inserts or renames a catalog item.
func (r *CosmeticRepo) AddCosmetic(ctx context.Context, c *domain.Cosmetic) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cosmetics (id, name, kind) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, kind = excluded.kind`,
		c.ID, c.Name, string(c.Kind),
	)
	if err != nil {
		return fmt.Errorf("insert cosmetic: %w", err)
	}
	return nil
}

// GetCosmetic returns a catalog item, or nil.
func (r *CosmeticRepo) GetCosmetic(ctx context.Context, id string) (*domain.Cosmetic, error) {
	var (
		c    domain.Cosmetic
		kind string
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, name, kind FROM cosmetics WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Kind = domain.CosmeticKind(kind)
	return &c, nil
}

// GrantCosmetic adds the item to the inventory. Returns false if the user
// already owned it.
func (r *CosmeticRepo) GrantCosmetic(ctx context.Context, userID, cosmeticID, source string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_cosmetics (user_id, cosmetic_id, source, granted_at, equipped)
		 VALUES (?, ?, ?, ?, 0)`,
		userID, cosmeticID, source, now.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("grant cosmetic: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// OwnsCosmetic reports whether userID owns cosmeticID.
func (r *CosmeticRepo) OwnsCosmetic(ctx context.Context, userID, cosmeticID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_cosmetics WHERE user_id = ? AND cosmetic_id = ?`, userID, cosmeticID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUserCosmetics returns the inventory ordered by grant time.
func (r *CosmeticRepo) ListUserCosmetics(ctx context.Context, userID string) ([]*domain.OwnedCosmetic, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.kind, uc.source, uc.granted_at, uc.equipped
		 FROM user_cosmetics uc JOIN cosmetics c ON c.id = uc.cosmetic_id
		 WHERE uc.user_id = ? ORDER BY uc.granted_at, c.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.OwnedCosmetic
	for rows.Next() {
		var (
			oc      domain.OwnedCosmetic
			kind    string
			granted int64
		)
		if err := rows.Scan(&oc.ID, &oc.Name, &kind, &oc.Source, &granted, &oc.Equipped); err != nil {
			return nil, err
		}
		oc.Kind = domain.CosmeticKind(kind)
		oc.GrantedAt = unixUTC(granted)
		out = append(out, &oc)
	}
	return out, rows.Err()
}

// Equip marks cosmeticID equipped and unequips every other owned item of
// the same kind, in one transaction.
func (r *CosmeticRepo) Equip(ctx context.Context, userID, cosmeticID string, kind domain.CosmeticKind) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin equip: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE user_cosmetics SET equipped = 0
		 WHERE user_id = ? AND cosmetic_id IN (SELECT id FROM cosmetics WHERE kind = ?)`,
		userID, string(kind),
	); err != nil {
		return fmt.Errorf("unequip kind: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE user_cosmetics SET equipped = 1 WHERE user_id = ? AND cosmetic_id = ?`, userID, cosmeticID)
	if err != nil {
		return fmt.Errorf("equip cosmetic: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCosmeticNotOwned
	}
	return tx.Commit()
}
