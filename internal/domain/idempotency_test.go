package domain

import (
	"testing"
	"time"
)

func TestIdempotency_UniquePerUserScopeKey(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if !db.Migrator().HasIndex(&Idempotency{}, "ux_user_scope_key") {
		t.Fatalf("expected composite index ux_user_scope_key")
	}

	now := time.Now().UTC()
	rec := &Idempotency{ID: "i1", UserID: "u1", Scope: "lst-1", Key: "k1", ResourceID: "txn-1", Status: 201, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should be filled on insert")
	}

	dup := &Idempotency{ID: "i2", UserID: "u1", Scope: "lst-1", Key: "k1", ResourceID: "txn-2", Status: 201, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation on (user_id, scope, key)")
	}

	// same key under another scope is a different request
	other := &Idempotency{ID: "i3", UserID: "u1", Scope: "chat-9", Key: "k1", ResourceID: "msg-1", Status: 201, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("insert other scope: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "i3").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.ResourceID != "msg-1" || got.Status != 201 || got.Scope != "chat-9" {
		t.Fatalf("unexpected row: %+v", got)
	}
}
