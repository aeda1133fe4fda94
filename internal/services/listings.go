package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/geo"
	"github.com/tbourn/rent-share-backend/internal/observability"
	"github.com/tbourn/rent-share-backend/internal/repo"
	"github.com/tbourn/rent-share-backend/internal/search"
)

const (
	maxTitleRunes       = 255
	maxDescriptionRunes = 5000
	maxCategoryRunes    = 64
	maxImages           = 10
)

// ListingInput is the payload for a new listing.
type ListingInput struct {
	Title       string
	Description string
	RentPerDay  float64
	SwapAllowed bool
	Category    string
	Latitude    float64
	Longitude   float64
	Images      []string
	VideoProof  string
	BlurHash    string
	Available   *bool
}

// ListingPatch is a partial listing update. Nil fields are left unchanged.
type ListingPatch struct {
	Title       *string
	Description *string
	RentPerDay  *float64
	SwapAllowed *bool
	Category    *string
	Latitude    *float64
	Longitude   *float64
	Images      *[]string
	VideoProof  *string
	BlurHash    *string
	Available   *bool
}

// SearchQuery filters the public catalogue. Near switches on proximity
// filtering; RadiusKM falls back to the service default.
type SearchQuery struct {
	Q        string
	Category string
	MinPrice *float64
	MaxPrice *float64
	SwapOnly bool
	Near     *geo.Point
	RadiusKM float64
	Page     int
	PageSize int
}

// ListingHit is a listing in search results. DistanceKM is set for proximity
// searches, Score for text searches.
type ListingHit struct {
	domain.Listing
	DistanceKM *float64 `json:"distance_km,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

// ListingService manages the catalogue.
type ListingService struct {
	DB             *gorm.DB
	SearchRadiusKM float64
	MaxRadiusKM    float64

	// MaxCandidates caps the rows ranked by a text or proximity search.
	MaxCandidates int
}

// DefaultMaxCandidates applies when MaxCandidates is unset.
const DefaultMaxCandidates = 1000

func (s *ListingService) candidates() int {
	if s.MaxCandidates > 0 {
		return s.MaxCandidates
	}
	return DefaultMaxCandidates
}

// Create validates in and stores a new listing owned by ownerID. Listings are
// available unless the input says otherwise.
func (s *ListingService) Create(ctx context.Context, ownerID string, in ListingInput) (l *domain.Listing, err error) {
	ctx, span := observability.StartSpan(ctx, "services/listings", "Create", attribute.String("user.id", ownerID))
	defer func() { observability.EndSpan(span, err) }()

	if _, err = repo.GetUser(ctx, s.DB, ownerID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if err = checkTitle(title); err != nil {
		return nil, err
	}
	desc := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(desc) > maxDescriptionRunes {
		return nil, invalidf("description is too long")
	}
	if err = checkPrice(in.RentPerDay); err != nil {
		return nil, err
	}
	category, err := normalizeCategory(in.Category)
	if err != nil {
		return nil, err
	}
	if !(geo.Point{Lat: in.Latitude, Lng: in.Longitude}).Valid() {
		return nil, invalidf("latitude must be in [-90,90] and longitude in [-180,180]")
	}
	images, err := cleanImages(in.Images)
	if err != nil {
		return nil, err
	}
	video := strings.TrimSpace(in.VideoProof)
	if video != "" && !validHTTPURL(video) {
		return nil, invalidf("video_proof must be an http(s) URL")
	}

	available := true
	if in.Available != nil {
		available = *in.Available
	}
	l = &domain.Listing{
		OwnerID:     ownerID,
		Title:       title,
		Description: desc,
		RentPerDay:  in.RentPerDay,
		SwapAllowed: in.SwapAllowed,
		Category:    category,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Images:      datatypes.JSONSlice[string](images),
		VideoProof:  video,
		BlurHash:    strings.TrimSpace(in.BlurHash),
		Available:   available,
	}
	if err = repo.CreateListing(ctx, s.DB, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Get returns a listing by ID.
func (s *ListingService) Get(ctx context.Context, listingID string) (*domain.Listing, error) {
	l, err := repo.GetListing(ctx, s.DB, listingID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrListingNotFound
	}
	return l, err
}

// ListByOwner returns ownerID's listings, newest first. Visitors only see the
// available ones.
func (s *ListingService) ListByOwner(ctx context.Context, ownerID, viewerID string, page, pageSize int) ([]domain.Listing, int64, error) {
	_, size, offset := pageBounds(page, pageSize)
	f := repo.ListingFilter{OwnerID: ownerID, AvailableOnly: viewerID != ownerID}
	total, err := repo.CountListings(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Listing{}, 0, nil
	}
	items, err := repo.ListListingsPage(ctx, s.DB, f, offset, size)
	return items, total, err
}

// Search lists available listings matching q. Without a text query or a
// location, results are newest first and paginated in SQL. A location
// restricts results to the radius and orders them by distance; a text query
// ranks them by relevance.
func (s *ListingService) Search(ctx context.Context, q SearchQuery) (hits []ListingHit, total int64, err error) {
	ctx, span := observability.StartSpan(ctx, "services/listings", "Search",
		attribute.String("search.q", q.Q),
		attribute.Bool("search.geo", q.Near != nil),
	)
	defer func() { observability.EndSpan(span, err) }()

	_, size, offset := pageBounds(q.Page, q.PageSize)
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return nil, 0, invalidf("min_price must not exceed max_price")
	}

	f := repo.ListingFilter{
		AvailableOnly: true,
		Category:      strings.TrimSpace(q.Category),
		MinPrice:      q.MinPrice,
		MaxPrice:      q.MaxPrice,
		SwapOnly:      q.SwapOnly,
	}
	text := strings.TrimSpace(q.Q)

	var radius float64
	if q.Near != nil {
		if !q.Near.Valid() {
			return nil, 0, invalidf("lat must be in [-90,90] and lng in [-180,180]")
		}
		if radius, err = s.radius(q.RadiusKM); err != nil {
			return nil, 0, err
		}
		box := geo.BoundingBox(*q.Near, radius)
		f.Box = &box
	}

	if text == "" && q.Near == nil {
		if total, err = repo.CountListings(ctx, s.DB, f); err != nil || total == 0 {
			return []ListingHit{}, total, err
		}
		rows, err := repo.ListListingsPage(ctx, s.DB, f, offset, size)
		if err != nil {
			return nil, 0, err
		}
		hits = make([]ListingHit, len(rows))
		for i := range rows {
			hits[i] = ListingHit{Listing: rows[i]}
		}
		return hits, total, nil
	}

	rows, err := repo.ListListingsPage(ctx, s.DB, f, 0, s.candidates())
	if err != nil {
		return nil, 0, err
	}

	hits = make([]ListingHit, 0, len(rows))
	for i := range rows {
		h := ListingHit{Listing: rows[i]}
		if q.Near != nil {
			d := geo.DistanceKM(*q.Near, geo.Point{Lat: rows[i].Latitude, Lng: rows[i].Longitude})
			if d > radius {
				continue
			}
			d = math.Round(d*100) / 100
			h.DistanceKM = &d
		}
		hits = append(hits, h)
	}

	if text != "" {
		hits = rank(hits, text, s.candidates())
	} else {
		sort.SliceStable(hits, func(a, b int) bool { return *hits[a].DistanceKM < *hits[b].DistanceKM })
	}

	total = int64(len(hits))
	if offset >= len(hits) {
		return []ListingHit{}, total, nil
	}
	end := min(offset+size, len(hits))
	return hits[offset:end], total, nil
}

// rank keeps the hits matching text, best first. Candidates arrive newest
// first, which breaks score ties; at most limit of them are indexed.
func rank(hits []ListingHit, text string, limit int) []ListingHit {
	docs := make([]search.Doc, len(hits))
	byID := make(map[string]ListingHit, len(hits))
	for i, h := range hits {
		docs[i] = search.Doc{
			ID:   h.ID,
			Key:  h.Title + " " + h.Category,
			Text: h.Title + " " + h.Category + " " + h.Description,
		}
		byID[h.ID] = h
	}
	idx := search.NewIndex(docs, search.WithStopwords(search.EnglishStopwords), search.WithMaxDocs(limit))
	results := idx.TopK(text, 0)
	out := make([]ListingHit, 0, len(results))
	for _, r := range results {
		h := byID[r.ID]
		score := math.Round(r.Score*1000) / 1000
		h.Score = &score
		out = append(out, h)
	}
	return out
}

func (s *ListingService) radius(requested float64) (float64, error) {
	if requested < 0 {
		return 0, invalidf("radius_km must be positive")
	}
	r := requested
	if r == 0 {
		r = s.SearchRadiusKM
	}
	if r <= 0 {
		r = 25
	}
	if s.MaxRadiusKM > 0 && r > s.MaxRadiusKM {
		r = s.MaxRadiusKM
	}
	return r, nil
}

// Update applies p to a listing owned by ownerID.
func (s *ListingService) Update(ctx context.Context, ownerID, listingID string, p ListingPatch) (l *domain.Listing, err error) {
	ctx, span := observability.StartSpan(ctx, "services/listings", "Update",
		attribute.String("user.id", ownerID),
		attribute.String("listing.id", listingID),
	)
	defer func() { observability.EndSpan(span, err) }()

	if _, err = s.owned(ctx, ownerID, listingID); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if err = checkTitle(title); err != nil {
			return nil, err
		}
		updates["title"] = title
	}
	if p.Description != nil {
		desc := strings.TrimSpace(*p.Description)
		if utf8.RuneCountInString(desc) > maxDescriptionRunes {
			return nil, invalidf("description is too long")
		}
		updates["description"] = desc
	}
	if p.RentPerDay != nil {
		if err = checkPrice(*p.RentPerDay); err != nil {
			return nil, err
		}
		updates["rent_per_day"] = *p.RentPerDay
	}
	if p.SwapAllowed != nil {
		updates["swap_allowed"] = *p.SwapAllowed
	}
	if p.Category != nil {
		category, cerr := normalizeCategory(*p.Category)
		if cerr != nil {
			return nil, cerr
		}
		updates["category"] = category
	}
	if p.Latitude != nil || p.Longitude != nil {
		cur, gerr := repo.GetListing(ctx, s.DB, listingID)
		if gerr != nil {
			return nil, gerr
		}
		pt := geo.Point{Lat: cur.Latitude, Lng: cur.Longitude}
		if p.Latitude != nil {
			pt.Lat = *p.Latitude
		}
		if p.Longitude != nil {
			pt.Lng = *p.Longitude
		}
		if !pt.Valid() {
			return nil, invalidf("latitude must be in [-90,90] and longitude in [-180,180]")
		}
		updates["latitude"], updates["longitude"] = pt.Lat, pt.Lng
	}
	if p.Images != nil {
		images, ierr := cleanImages(*p.Images)
		if ierr != nil {
			return nil, ierr
		}
		updates["images"] = datatypes.JSONSlice[string](images)
	}
	if p.VideoProof != nil {
		video := strings.TrimSpace(*p.VideoProof)
		if video != "" && !validHTTPURL(video) {
			return nil, invalidf("video_proof must be an http(s) URL")
		}
		updates["video_proof"] = video
	}
	if p.BlurHash != nil {
		updates["blur_hash"] = strings.TrimSpace(*p.BlurHash)
	}
	if p.Available != nil {
		updates["available"] = *p.Available
	}

	if len(updates) > 0 {
		if err = repo.UpdateListing(ctx, s.DB, listingID, ownerID, updates); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrListingNotFound
			}
			return nil, err
		}
	}
	return s.Get(ctx, listingID)
}

// Delete removes a listing owned by ownerID. Transactions keep the
// denormalized title, so history stays readable.
func (s *ListingService) Delete(ctx context.Context, ownerID, listingID string) (err error) {
	ctx, span := observability.StartSpan(ctx, "services/listings", "Delete",
		attribute.String("user.id", ownerID),
		attribute.String("listing.id", listingID),
	)
	defer func() { observability.EndSpan(span, err) }()

	if _, err = s.owned(ctx, ownerID, listingID); err != nil {
		return err
	}
	if err = repo.DeleteListing(ctx, s.DB, listingID, ownerID); errors.Is(err, repo.ErrNotFound) {
		return ErrListingNotFound
	}
	return err
}

func (s *ListingService) owned(ctx context.Context, ownerID, listingID string) (*domain.Listing, error) {
	l, err := s.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return l, nil
}

func checkTitle(title string) error {
	if title == "" {
		return invalidf("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		return invalidf("title must be at most %d characters", maxTitleRunes)
	}
	return nil
}

func checkPrice(p float64) error {
	if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return invalidf("rent_per_day must be a non-negative number")
	}
	return nil
}

// normalizeCategory collapses whitespace and title-cases the category so
// "power  TOOLS" and "Power tools" group together.
func normalizeCategory(raw string) (string, error) {
	c := strings.Join(strings.Fields(raw), " ")
	if c == "" {
		return "", nil
	}
	if utf8.RuneCountInString(c) > maxCategoryRunes {
		return "", invalidf("category must be at most %d characters", maxCategoryRunes)
	}
	return cases.Title(language.English).String(c), nil
}

func cleanImages(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		if !validHTTPURL(u) {
			return nil, invalidf("images must be http(s) URLs")
		}
		out = append(out, u)
	}
	if len(out) > maxImages {
		return nil, invalidf("at most %d images are allowed", maxImages)
	}
	return out, nil
}
