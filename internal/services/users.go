package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/geo"
	"github.com/tbourn/rent-share-backend/internal/observability"
	"github.com/tbourn/rent-share-backend/internal/repo"
)

// ProfileClaims are the identity fields copied into the profile on sync.
type ProfileClaims struct {
	Name  string
	Email string
}

// ProfilePatch is a partial profile update. Nil fields are left unchanged.
type ProfilePatch struct {
	Name       *string
	Phone      *string
	Role       *string
	IDProofURL *string
}

// UserService manages marketplace profiles keyed by identity-provider uid.
type UserService struct {
	DB *gorm.DB
}

// Sync creates the profile on first sign-in and refreshes name and email
// afterwards. Wallet, rating and verification are never touched. The second
// return value reports whether the profile was created.
func (s *UserService) Sync(ctx context.Context, uid string, c ProfileClaims) (u *domain.User, created bool, err error) {
	ctx, span := observability.StartSpan(ctx, "services/users", "Sync", attribute.String("user.id", uid))
	defer func() { observability.EndSpan(span, err) }()

	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, false, invalidf("uid is required")
	}
	name := strings.TrimSpace(c.Name)
	email := strings.ToLower(strings.TrimSpace(c.Email))

	existing, err := repo.GetUser(ctx, s.DB, uid)
	switch {
	case err == nil:
		return s.refresh(ctx, existing, name, email)
	case !errors.Is(err, repo.ErrNotFound):
		return nil, false, err
	}

	u = &domain.User{ID: uid, Name: name, Email: email}
	if err = repo.CreateUser(ctx, s.DB, u); err != nil {
		if !errors.Is(err, repo.ErrDuplicate) {
			return nil, false, err
		}
		// lost a first-sign-in race: read what the winner stored
		if existing, err = repo.GetUser(ctx, s.DB, uid); err != nil {
			return nil, false, err
		}
		return s.refresh(ctx, existing, name, email)
	}
	return u, true, nil
}

func (s *UserService) refresh(ctx context.Context, u *domain.User, name, email string) (*domain.User, bool, error) {
	updates := map[string]any{}
	if name != "" && name != u.Name {
		updates["name"] = name
	}
	if email != "" && email != u.Email {
		updates["email"] = email
	}
	if len(updates) == 0 {
		return u, false, nil
	}
	if err := repo.UpdateUser(ctx, s.DB, u.ID, updates); err != nil {
		return nil, false, err
	}
	fresh, err := repo.GetUser(ctx, s.DB, u.ID)
	return fresh, false, err
}

// Get returns the profile of uid.
func (s *UserService) Get(ctx context.Context, uid string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, uid)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// UpdateProfile applies p to the profile of uid and returns the result.
func (s *UserService) UpdateProfile(ctx context.Context, uid string, p ProfilePatch) (*domain.User, error) {
	updates := map[string]any{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" || utf8.RuneCountInString(name) > 255 {
			return nil, invalidf("name must be 1..255 characters")
		}
		updates["name"] = name
	}
	if p.Phone != nil {
		phone := strings.TrimSpace(*p.Phone)
		if len(phone) > 32 {
			return nil, invalidf("phone is too long")
		}
		updates["phone"] = phone
	}
	if p.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*p.Role))
		switch role {
		case domain.RoleRent, domain.RoleSwap, domain.RoleBoth:
		default:
			return nil, invalidf("role must be one of rent, swap, both")
		}
		updates["role"] = role
	}
	if p.IDProofURL != nil {
		raw := strings.TrimSpace(*p.IDProofURL)
		if raw != "" && !validHTTPURL(raw) {
			return nil, invalidf("id_proof_url must be an http(s) URL")
		}
		updates["id_proof_url"] = raw
	}

	if err := repo.UpdateUser(ctx, s.DB, uid, updates); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.Get(ctx, uid)
}

// UpdateLocation stores the user's last known position.
func (s *UserService) UpdateLocation(ctx context.Context, uid string, p geo.Point) (*domain.User, error) {
	if !p.Valid() {
		return nil, invalidf("latitude must be in [-90,90] and longitude in [-180,180]")
	}
	err := repo.UpdateUser(ctx, s.DB, uid, map[string]any{"latitude": p.Lat, "longitude": p.Lng})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, uid)
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
