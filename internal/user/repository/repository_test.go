package repository

import (
	"context"
	"testing"
	"time"

	"github.com/landovsky/gmail-assistant-sub002/internal/storetest"
	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"
)

func TestSyncLease(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t)
	user := storetest.CreateUser(t, db, "a@example.com")
	repo := NewSyncStateRepository(db)

	ok, err := repo.AcquireLease(ctx, user.ID, "worker-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: %v %v", ok, err)
	}
	if ok, _ := repo.AcquireLease(ctx, user.ID, "worker-2", time.Minute); ok {
		t.Fatal("second owner must not acquire a live lease")
	}
	if ok, _ := repo.AcquireLease(ctx, user.ID, "worker-1", time.Minute); !ok {
		t.Fatal("owner should be able to extend its lease")
	}
	if err := repo.ReleaseLease(ctx, user.ID, "worker-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := repo.AcquireLease(ctx, user.ID, "worker-2", -time.Second); !ok {
		t.Fatal("released lease should be free")
	}
	// worker-2's lease is already expired.
	if ok, _ := repo.AcquireLease(ctx, user.ID, "worker-3", time.Minute); !ok {
		t.Fatal("expired lease should be free")
	}
}

func TestSyncCursor(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t)
	user := storetest.CreateUser(t, db, "a@example.com")
	repo := NewSyncStateRepository(db)

	state, err := repo.Get(ctx, user.ID)
	if err != nil || state != nil {
		t.Fatalf("expected no state, got %+v %v", state, err)
	}
	if !state.NeverSynced() {
		t.Fatal("missing state means never synced")
	}

	if err := repo.SetCursor(ctx, user.ID, "500"); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	if err := repo.SetWatch(ctx, user.ID, "res-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SetWatch: %v", err)
	}
	state, _ = repo.Get(ctx, user.ID)
	if state.LastHistoryID != "500" || state.LastSyncAt == nil || state.WatchResourceID != "res-1" || state.NeverSynced() {
		t.Fatalf("unexpected state %+v", state)
	}

	if err := repo.ResetCursor(ctx, user.ID); err != nil {
		t.Fatalf("ResetCursor: %v", err)
	}
	state, _ = repo.Get(ctx, user.ID)
	if state.LastHistoryID != userdomain.CursorNeverSynced || !state.NeverSynced() {
		t.Fatalf("expected sentinel cursor, got %q", state.LastHistoryID)
	}
}

func TestUsersAndSettings(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t)
	users := NewUserRepository(db)

	active := &userdomain.User{Email: "Active@Example.com", IsActive: true}
	if err := users.Create(ctx, active); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := users.Create(ctx, &userdomain.User{Email: "off@example.com"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := users.FindByEmail(ctx, "active@example.com")
	if err != nil || got == nil || got.ID != active.ID {
		t.Fatalf("FindByEmail: %+v %v", got, err)
	}
	list, _ := users.ListActive(ctx)
	if len(list) != 1 || list[0].ID != active.ID {
		t.Fatalf("expected only the active user, got %d", len(list))
	}
	if missing, err := users.FindByID(ctx, "nope"); missing != nil || err != nil {
		t.Fatalf("expected nil, nil; got %+v %v", missing, err)
	}

	if err := users.UpdateTokens(ctx, active.ID, "access", "refresh", time.Now()); err != nil {
		t.Fatalf("UpdateTokens: %v", err)
	}
	if err := users.UpdateTokens(ctx, active.ID, "access-2", "", time.Now()); err != nil {
		t.Fatalf("UpdateTokens: %v", err)
	}
	got, _ = users.FindByID(ctx, active.ID)
	if got.AccessToken != "access-2" || got.RefreshToken != "refresh" {
		t.Fatalf("unexpected tokens %q / %q", got.AccessToken, got.RefreshToken)
	}

	settings := NewSettingsRepository(db)
	s, err := settings.Get(ctx, active.ID)
	if err != nil || s.UserID != active.ID || len(s.Blacklist) != 0 {
		t.Fatalf("expected empty settings, got %+v %v", s, err)
	}
	s.Blacklist = userdomain.StringList{"*@spam.com"}
	s.DomainStyles = userdomain.StringMap{"*.gov.cz": "formal"}
	if err := settings.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s, _ = settings.Get(ctx, active.ID)
	if len(s.Blacklist) != 1 || s.DomainStyles["*.gov.cz"] != "formal" {
		t.Fatalf("settings not persisted: %+v", s)
	}
}
