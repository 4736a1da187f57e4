package cosmetic_test

import (
	"context"
	"testing"
	"time"

	"github.com/blockrush/blockrush/internal/app/cosmetic"
	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/infra/sqlite"
	"github.com/blockrush/blockrush/internal/logger"
)

var ctx = context.Background()

func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *sqlite.DB) *domain.User {
	t.Helper()
	for _, c := range []struct {
		id   string
		kind domain.CosmeticKind
	}{
		{"skin-neon", domain.KindBlockSkin},
		{"skin-wood", domain.KindBlockSkin},
		{"theme-space", domain.KindBoardTheme},
	} {
		item, err := domain.NewCosmetic(c.id, c.id, c.kind)
		if err != nil {
			t.Fatalf("NewCosmetic: %v", err)
		}
		if err := db.Cosmetics().AddCosmetic(ctx, item); err != nil {
			t.Fatalf("AddCosmetic: %v", err)
		}
	}
	u, err := domain.NewUser("ext-1", "a@example.com", "alice", "", time.Now())
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if err := db.Users().Add(ctx, u); err != nil {
		t.Fatalf("Add user: %v", err)
	}
	return u
}

func TestGrantCosmetic(t *testing.T) {
	db := testDB(t)
	u := seed(t, db)
	svc := cosmetic.NewService(db.Cosmetics(), logger.Nop())

	ok, err := svc.GrantCosmetic(ctx, u.ID, "skin-neon", "season_pass")
	if err != nil || !ok {
		t.Fatalf("expected grant to succeed, got %v, %v", ok, err)
	}
	owns, err := svc.UserOwnsCosmetic(ctx, u.ID, "skin-neon")
	if err != nil || !owns {
		t.Errorf("expected user to own skin-neon, got %v, %v", owns, err)
	}

	// Second grant is a no-op success.
	ok, err = svc.GrantCosmetic(ctx, u.ID, "skin-neon", "season_pass")
	if err != nil || !ok {
		t.Errorf("expected regrant to succeed, got %v, %v", ok, err)
	}
	items, _ := svc.Inventory(ctx, u.ID)
	if len(items) != 1 {
		t.Errorf("expected 1 item in inventory, got %d", len(items))
	}
}

func TestGrantCosmetic_UnknownID(t *testing.T) {
	db := testDB(t)
	u := seed(t, db)
	svc := cosmetic.NewService(db.Cosmetics(), logger.Nop())

	ok, err := svc.GrantCosmetic(ctx, u.ID, "does-not-exist", "season_pass")
	if err != nil {
		t.Fatalf("GrantCosmetic() error: %v", err)
	}
	if ok {
		t.Error("expected grant of unknown cosmetic to fail")
	}
}

func TestEquipCosmetic_OnePerSlot(t *testing.T) {
	db := testDB(t)
	u := seed(t, db)
	svc := cosmetic.NewService(db.Cosmetics(), logger.Nop())

	for _, id := range []string{"skin-neon", "skin-wood", "theme-space"} {
		if _, err := svc.GrantCosmetic(ctx, u.ID, id, "test"); err != nil {
			t.Fatalf("grant %s: %v", id, err)
		}
	}
	for _, id := range []string{"skin-neon", "theme-space", "skin-wood"} {
		ok, err := svc.EquipCosmetic(ctx, u.ID, id)
		if err != nil || !ok {
			t.Fatalf("equip %s: %v, %v", id, ok, err)
		}
	}

	items, err := svc.Inventory(ctx, u.ID)
	if err != nil {
		t.Fatalf("Inventory() error: %v", err)
	}
	equipped := map[string]bool{}
	for _, it := range items {
		equipped[it.ID] = it.Equipped
	}
	if equipped["skin-neon"] {
		t.Error("skin-neon should have been unequipped by skin-wood")
	}
	if !equipped["skin-wood"] || !equipped["theme-space"] {
		t.Errorf("expected skin-wood and theme-space equipped, got %v", equipped)
	}
}

func TestEquipCosmetic_NotOwned(t *testing.T) {
	db := testDB(t)
	u := seed(t, db)
	svc := cosmetic.NewService(db.Cosmetics(), logger.Nop())

	ok, err := svc.EquipCosmetic(ctx, u.ID, "skin-neon")
	if err != nil {
		t.Fatalf("EquipCosmetic() error: %v", err)
	}
	if ok {
		t.Error("expected equip of unowned cosmetic to fail")
	}
	if ok, _ := svc.EquipCosmetic(ctx, u.ID, "missing"); ok {
		t.Error("expected equip of unknown cosmetic to fail")
	}
}
