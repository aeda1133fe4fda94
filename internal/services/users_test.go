package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/rent-share-backend/internal/geo"
	"github.com/tbourn/rent-share-backend/internal/repo"
)

func TestUserSync_CreatesThenRefreshes(t *testing.T) {
	s := &UserService{DB: newTestDB(t)}
	ctx := context.Background()

	u, created, err := s.Sync(ctx, "uid-1", ProfileClaims{Name: " Ada ", Email: "ADA@Example.com"})
	if err != nil || !created {
		t.Fatalf("first sync: %+v %v %v", u, created, err)
	}
	if u.Name != "Ada" || u.Email != "ada@example.com" || u.Rating != 0 || u.Verified {
		t.Fatalf("created = %+v", u)
	}

	// wallet and rating set elsewhere must survive a later sign-in
	if err := repo.UpdateUser(ctx, s.DB, "uid-1", map[string]any{"wallet": 40.0, "rating": 4.5, "verified": true}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	u, created, err = s.Sync(ctx, "uid-1", ProfileClaims{Name: "Ada L."})
	if err != nil || created {
		t.Fatalf("second sync: %+v %v %v", u, created, err)
	}
	if u.Name != "Ada L." || u.Email != "ada@example.com" || u.Wallet != 40 || u.Rating != 4.5 || !u.Verified {
		t.Fatalf("refreshed = %+v", u)
	}

	if _, _, err := s.Sync(ctx, " ", ProfileClaims{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank uid: %v", err)
	}
}

func TestUserUpdateProfile(t *testing.T) {
	s := &UserService{DB: newTestDB(t)}
	ctx := context.Background()
	seedUser(t, s.DB, "u1", "Ada")

	u, err := s.UpdateProfile(ctx, "u1", ProfilePatch{
		Phone:      ptr(" +30 210 000 "),
		Role:       ptr("BOTH"),
		IDProofURL: ptr("https://cdn/id.jpg"),
	})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if u.Phone != "+30 210 000" || u.Role != "both" || u.IDProofURL != "https://cdn/id.jpg" || u.Name != "Ada" {
		t.Fatalf("profile = %+v", u)
	}

	for name, p := range map[string]ProfilePatch{
		"blank name": {Name: ptr("  ")},
		"bad role":   {Role: ptr("admin")},
		"bad proof":  {IDProofURL: ptr("javascript:alert(1)")},
	} {
		if _, err := s.UpdateProfile(ctx, "u1", p); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: want ErrInvalidInput, got %v", name, err)
		}
	}
	if _, err := s.UpdateProfile(ctx, "ghost", ProfilePatch{Name: ptr("x")}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("ghost: %v", err)
	}
	if _, err := s.Get(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("ghost get: %v", err)
	}
}

func TestUserUpdateLocation(t *testing.T) {
	s := &UserService{DB: newTestDB(t)}
	ctx := context.Background()
	seedUser(t, s.DB, "u1", "Ada")

	u, err := s.UpdateLocation(ctx, "u1", geo.Point{Lat: 37.98, Lng: 23.72})
	if err != nil || u.Latitude == nil || *u.Latitude != 37.98 || *u.Longitude != 23.72 {
		t.Fatalf("location = %+v %v", u, err)
	}
	if _, err := s.UpdateLocation(ctx, "u1", geo.Point{Lat: 0, Lng: 181}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad point: %v", err)
	}
	if _, err := s.UpdateLocation(ctx, "ghost", geo.Point{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("ghost: %v", err)
	}
}
