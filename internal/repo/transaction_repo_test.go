package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/rent-share-backend/internal/domain"
)

func newTx(owner, renter, typ, status string, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ListingID: "lst-x", ListingTitle: "Thing",
		OwnerID: owner, RenterID: renter,
		Type: typ, Status: status, PaymentMode: domain.PaymentOnline,
		StartDate: at, EndDate: at.Add(7 * 24 * time.Hour),
		CreatedAt: at,
	}
}

func TestTransactionRepo_CreateGetDelete(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	tx := newTx("o", "r", domain.TxTypeRent, domain.TxStatusPending, time.Now().UTC())
	if err := CreateTransaction(ctx, db, tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if !strings.HasPrefix(tx.ID, "txn-") {
		t.Fatalf("unexpected id %q", tx.ID)
	}
	got, err := GetTransaction(ctx, db, tx.ID)
	if err != nil || got.OwnerID != "o" || got.Status != domain.TxStatusPending {
		t.Fatalf("GetTransaction: %v %+v", err, got)
	}

	if err := DeleteTransaction(ctx, db, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if err := DeleteTransaction(ctx, db, tx.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
}

func TestListTransactionsForUser_BothRolesNoDuplicates(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	seed := []*domain.Transaction{
		newTx("me", "r1", domain.TxTypeRent, domain.TxStatusPending, base),
		newTx("o1", "me", domain.TxTypeSwap, domain.TxStatusActive, base.Add(time.Minute)),
		newTx("me", "me2", domain.TxTypeRent, domain.TxStatusCompleted, base.Add(2*time.Minute)),
		newTx("o2", "r2", domain.TxTypeRent, domain.TxStatusActive, base.Add(3*time.Minute)),
	}
	for _, tx := range seed {
		if err := CreateTransaction(ctx, db, tx); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	all, err := ListTransactionsForUser(ctx, db, "me", TransactionFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != seed[2].ID || all[2].ID != seed[0].ID {
		t.Fatalf("want 3 newest-first, got %+v", all)
	}

	active, _ := ListTransactionsForUser(ctx, db, "me", TransactionFilter{Statuses: []string{"pending", "active"}}, 0, 0)
	if len(active) != 2 {
		t.Fatalf("active tab: got %d", len(active))
	}
	swaps, _ := ListTransactionsForUser(ctx, db, "me", TransactionFilter{Type: domain.TxTypeSwap}, 0, 0)
	if len(swaps) != 1 || swaps[0].ID != seed[1].ID {
		t.Fatalf("swaps tab: %+v", swaps)
	}
	n, err := CountTransactionsForUser(ctx, db, "me", TransactionFilter{Statuses: []string{"completed"}})
	if err != nil || n != 1 {
		t.Fatalf("count completed = %d, %v", n, err)
	}
}

func TestUpdateTransactionStatus_CompareAndSet(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	tx := newTx("o", "r", domain.TxTypeRent, domain.TxStatusPending, time.Now().UTC())
	_ = CreateTransaction(ctx, db, tx)

	if err := UpdateTransactionStatus(ctx, db, tx.ID, domain.TxStatusPending, domain.TxStatusActive); err != nil {
		t.Fatalf("pending->active: %v", err)
	}
	// stale from-status loses
	if err := UpdateTransactionStatus(ctx, db, tx.ID, domain.TxStatusPending, domain.TxStatusDeclined); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale transition: want ErrNotFound, got %v", err)
	}
	got, _ := GetTransaction(ctx, db, tx.ID)
	if got.Status != domain.TxStatusActive {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestCountOpenTransactionsForListing(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	active := newTx("o", "r1", domain.TxTypeRent, domain.TxStatusActive, now)
	for _, tx := range []*domain.Transaction{
		active,
		newTx("o", "r2", domain.TxTypeRent, "DISPUTED", now),
		newTx("o", "r3", domain.TxTypeRent, domain.TxStatusPending, now),
		newTx("o", "r4", domain.TxTypeRent, domain.TxStatusCompleted, now),
	} {
		if err := CreateTransaction(ctx, db, tx); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if n, err := CountOpenTransactionsForListing(ctx, db, "lst-x", ""); err != nil || n != 2 {
		t.Fatalf("open = %d, %v; want 2", n, err)
	}
	if n, err := CountOpenTransactionsForListing(ctx, db, "lst-x", active.ID); err != nil || n != 1 {
		t.Fatalf("open except active = %d, %v; want 1", n, err)
	}
	if n, err := CountOpenTransactionsForListing(ctx, db, "lst-other", ""); err != nil || n != 0 {
		t.Fatalf("other listing = %d, %v", n, err)
	}
}
