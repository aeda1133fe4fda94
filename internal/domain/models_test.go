package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func migrateAll(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.AutoMigrate(&User{}, &Listing{}, &Transaction{}, &Chat{}, &Message{}, &Notification{}, &Review{}, &Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		User{}.TableName():         "users",
		Listing{}.TableName():      "listings",
		Transaction{}.TableName():  "transactions",
		Chat{}.TableName():         "chats",
		Message{}.TableName():      "messages",
		Notification{}.TableName(): "notifications",
		Review{}.TableName():       "reviews",
		Idempotency{}.TableName():  "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newDomainDB(t)
	migrateAll(t, db)
	m := db.Migrator()

	for _, idx := range []struct {
		model any
		name  string
	}{
		{&Listing{}, "idx_listing_owner"},
		{&Listing{}, "idx_listing_geo"},
		{&Listing{}, "idx_listing_avail"},
		{&Transaction{}, "idx_tx_owner"},
		{&Transaction{}, "idx_tx_renter"},
		{&Message{}, "idx_chat_msgs"},
		{&Notification{}, "idx_notif_user"},
	} {
		if !m.HasIndex(idx.model, idx.name) {
			t.Fatalf("expected index %s on %T", idx.name, idx.model)
		}
	}
}

func TestChat_DeleteCascadesMessages(t *testing.T) {
	db := newDomainDB(t)
	migrateAll(t, db)

	now := time.Now().UTC()
	if err := db.Create(&Chat{ID: "chat-1", OwnerID: "o", RenterID: "r", LastUpdated: now}).Error; err != nil {
		t.Fatalf("insert chat: %v", err)
	}
	for i, text := range []string{"hi", "hello"} {
		msg := &Message{ID: fmt.Sprintf("msg-%d", i), ChatID: "chat-1", SenderID: "o", Text: text, CreatedAt: now}
		if err := db.Omit("Chat").Create(msg).Error; err != nil {
			t.Fatalf("insert message: %v", err)
		}
	}

	if err := db.Delete(&Chat{}, "id = ?", "chat-1").Error; err != nil {
		t.Fatalf("delete chat: %v", err)
	}
	var n int64
	db.Model(&Message{}).Where("chat_id = ?", "chat-1").Count(&n)
	if n != 0 {
		t.Fatalf("messages should cascade with chat, %d left", n)
	}
}

func TestChat_ParticipantsDerived(t *testing.T) {
	db := newDomainDB(t)
	migrateAll(t, db)

	c := &Chat{ID: "chat-p", OwnerID: "owner", RenterID: "renter", LastUpdated: time.Now()}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(c.Participants) != 2 || c.Participants[0] != "owner" || c.Participants[1] != "renter" {
		t.Fatalf("participants after create: %v", c.Participants)
	}

	var got Chat
	if err := db.First(&got, "id = ?", "chat-p").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	b, _ := json.Marshal(got)
	if !strings.Contains(string(b), `"participants":["owner","renter"]`) {
		t.Fatalf("participants not serialized: %s", b)
	}
	if strings.Contains(string(b), "OwnerID") {
		t.Fatalf("raw owner column leaked: %s", b)
	}

	if !got.HasParticipant("renter") || got.HasParticipant("stranger") || got.HasParticipant("") {
		t.Fatalf("HasParticipant mismatch")
	}
	if got.Counterpart("owner") != "renter" || got.Counterpart("renter") != "owner" {
		t.Fatalf("Counterpart mismatch")
	}
}

func TestListing_ImagesJSONRoundTrip(t *testing.T) {
	db := newDomainDB(t)
	migrateAll(t, db)

	l := &Listing{ID: "lst-1", OwnerID: "o", Title: "Drill", Available: true,
		Images: []string{"https://cdn/a.jpg", "https://cdn/b.jpg"}}
	if err := db.Create(l).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var got Listing
	if err := db.First(&got, "id = ?", "lst-1").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Images) != 2 || got.Images[1] != "https://cdn/b.jpg" {
		t.Fatalf("images mismatch: %v", got.Images)
	}
}

func TestTransaction_Helpers(t *testing.T) {
	tx := &Transaction{OwnerID: "o", RenterID: "r"}
	if !tx.IsParticipant("o") || !tx.IsParticipant("r") || tx.IsParticipant("x") || tx.IsParticipant("") {
		t.Fatalf("IsParticipant mismatch")
	}
	if tx.Counterpart("o") != "r" || tx.Counterpart("r") != "o" {
		t.Fatalf("Counterpart mismatch")
	}
}

func TestTxStatus(t *testing.T) {
	if NormalizeTxStatus(" PENDING ") != TxStatusPending {
		t.Fatalf("legacy status should normalize to pending")
	}
	for _, s := range []string{"pending", "active", "completed", "disputed", "declined"} {
		if !ValidTxStatus(s) {
			t.Fatalf("%q should be valid", s)
		}
	}
	if ValidTxStatus("PENDING") || ValidTxStatus("archived") {
		t.Fatalf("unexpected valid status")
	}
}
