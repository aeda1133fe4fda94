package handlers

import (
	"net/http"
	"testing"

	"github.com/tbourn/rent-share-backend/internal/domain"
)

func TestCreateListing_Validation(t *testing.T) {
	api := newTestAPI(t, Deps{})
	api.sync("owner", "Olga")

	cases := []struct {
		name string
		body any
	}{
		{"missing title", map[string]any{"rent_per_day": 5}},
		{"negative price", map[string]any{"title": "Drill", "rent_per_day": -1}},
		{"latitude out of range", map[string]any{"title": "Drill", "latitude": 120}},
		{"image not a URL", map[string]any{"title": "Drill", "images": []string{"file:///etc/passwd"}}},
		{"malformed json", `{"title":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, api.do(http.MethodPost, "/listings", "owner", tc.body), http.StatusBadRequest, ErrCodeBadRequest)
		})
	}

	// profile must exist before posting
	expectError(t, api.do(http.MethodPost, "/listings", "stranger", map[string]any{"title": "Drill"}), http.StatusNotFound, ErrCodeNotFound)
}

func TestCreateAndGetListing(t *testing.T) {
	api := newTestAPI(t, Deps{})
	api.sync("owner", "Olga")

	id := api.listing("owner", map[string]any{
		"title":        "  Camping tent ",
		"rent_per_day": 12.5,
		"category":     "outdoor  GEAR",
		"images":       []string{"https://cdn.example.com/a.jpg", " "},
		"latitude":     37.98,
		"longitude":    23.72,
	})

	w := api.do(http.MethodGet, "/listings/"+id, "u-2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	var l domain.Listing
	decode(t, w, &l)
	if l.Title != "Camping tent" || l.Category != "Outdoor Gear" || !l.Available || len(l.Images) != 1 || l.OwnerID != "owner" {
		t.Fatalf("unexpected %+v", l)
	}

	expectError(t, api.do(http.MethodGet, "/listings/lst-missing", "u-2", nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestUpdateAndDeleteListing_OwnerOnly(t *testing.T) {
	api := newTestAPI(t, Deps{})
	api.sync("owner", "Olga")
	id := api.listing("owner", map[string]any{"title": "Drill", "rent_per_day": 4})

	expectError(t, api.do(http.MethodPatch, "/listings/"+id, "intruder", map[string]any{"title": "Mine"}), http.StatusForbidden, ErrCodeForbidden)
	expectError(t, api.do(http.MethodDelete, "/listings/"+id, "intruder", nil), http.StatusForbidden, ErrCodeForbidden)

	w := api.do(http.MethodPatch, "/listings/"+id, "owner", map[string]any{"rent_per_day": 6, "swap_allowed": true})
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}
	var l domain.Listing
	decode(t, w, &l)
	if l.RentPerDay != 6 || !l.SwapAllowed || l.Title != "Drill" {
		t.Fatalf("unexpected %+v", l)
	}

	if w := api.do(http.MethodDelete, "/listings/"+id, "owner", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	expectError(t, api.do(http.MethodGet, "/listings/"+id, "owner", nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestSearchListings(t *testing.T) {
	api := newTestAPI(t, Deps{})
	api.sync("owner", "Olga")
	// Athens and Thessaloniki are ~300 km apart.
	api.listing("owner", map[string]any{"title": "Camping tent", "category": "outdoor", "rent_per_day": 10, "latitude": 37.98, "longitude": 23.72, "swap_allowed": true})
	api.listing("owner", map[string]any{"title": "Power drill", "category": "tools", "rent_per_day": 4, "latitude": 40.64, "longitude": 22.94})
	api.listing("owner", map[string]any{"title": "Hidden tent", "rent_per_day": 1, "available": false})

	search := func(query string) SearchListingsResponse {
		t.Helper()
		w := api.do(http.MethodGet, "/listings?"+query, "u-2", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("search %q: %d %s", query, w.Code, w.Body.String())
		}
		var out SearchListingsResponse
		decode(t, w, &out)
		return out
	}

	if got := search(""); got.Pagination.Total != 2 {
		t.Fatalf("all available: %d", got.Pagination.Total)
	}
	if got := search("q=tent"); got.Pagination.Total != 1 || got.Listings[0].Title != "Camping tent" || got.Listings[0].Score == nil {
		t.Fatalf("text search: %+v", got.Listings)
	}
	if got := search("max_price=5"); got.Pagination.Total != 1 || got.Listings[0].Title != "Power drill" {
		t.Fatalf("price filter: %+v", got.Listings)
	}
	if got := search("swap_only=true"); got.Pagination.Total != 1 || !got.Listings[0].SwapAllowed {
		t.Fatalf("swap filter: %+v", got.Listings)
	}
	got := search("lat=37.97&lng=23.73&radius_km=50")
	if got.Pagination.Total != 1 || got.Listings[0].DistanceKM == nil || *got.Listings[0].DistanceKM > 5 {
		t.Fatalf("proximity: %+v", got.Listings)
	}

	expectError(t, api.do(http.MethodGet, "/listings?lat=37.9", "u-2", nil), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, api.do(http.MethodGet, "/listings?min_price=9&max_price=1", "u-2", nil), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, api.do(http.MethodGet, "/listings?min_price=abc", "u-2", nil), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestCreateRequest_FlowAndReplay(t *testing.T) {
	api := newTestAPI(t, Deps{})
	api.sync("owner", "Olga")
	api.sync("renter", "Rita")
	id := api.listing("owner", map[string]any{"title": "Tent", "rent_per_day": 10})

	body := map[string]any{
		"kind":         "rent",
		"start_date":   "2025-06-01T00:00:00Z",
		"end_date":     "2025-06-04T00:00:00Z",
		"payment_mode": "OFFLINE",
	}
	w := api.do(http.MethodPost, "/listings/"+id+"/requests", "renter", body, "Idempotency-Key", "req-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("request: %d %s", w.Code, w.Body.String())
	}
	var first RequestCreatedResponse
	decode(t, w, &first)
	tx := first.Transaction
	if tx.Status != domain.TxStatusPending || tx.Type != domain.TxTypeRent || tx.Amount != 30 || tx.PaymentMode != domain.PaymentOffline {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	if first.Chat == nil || first.Chat.TransactionID == nil || *first.Chat.TransactionID != tx.ID {
		t.Fatalf("chat not linked: %+v", first.Chat)
	}

	w = api.do(http.MethodPost, "/listings/"+id+"/requests", "renter", body, "Idempotency-Key", "req-1")
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: %d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
	var again RequestCreatedResponse
	decode(t, w, &again)
	if again.Transaction.ID != tx.ID {
		t.Fatalf("replay created a new transaction")
	}

	var n UnreadCountResponse
	decode(t, api.do(http.MethodGet, "/notifications/unread-count", "owner", nil), &n)
	if n.Unread != 1 {
		t.Fatalf("owner unread = %d", n.Unread)
	}
}

func TestCreateRequest_Rejections(t *testing.T) {
	api := newTestAPI(t, Deps{})
	api.sync("owner", "Olga")
	api.sync("renter", "Rita")
	id := api.listing("owner", map[string]any{"title": "Tent", "rent_per_day": 10})
	off := api.listing("owner", map[string]any{"title": "Kayak", "available": false})

	expectError(t, api.do(http.MethodPost, "/listings/"+id+"/requests", "owner", nil), http.StatusBadRequest, ErrCodeSelfRequest)
	expectError(t, api.do(http.MethodPost, "/listings/"+id+"/requests", "renter", map[string]string{"kind": "swap"}), http.StatusConflict, ErrCodeSwapNotAllowed)
	expectError(t, api.do(http.MethodPost, "/listings/"+off+"/requests", "renter", nil), http.StatusConflict, ErrCodeListingUnavailable)
	expectError(t, api.do(http.MethodPost, "/listings/lst-missing/requests", "renter", nil), http.StatusNotFound, ErrCodeNotFound)
	expectError(t, api.do(http.MethodPost, "/listings/"+id+"/requests", "renter", map[string]string{"kind": "buy"}), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, api.do(http.MethodPost, "/listings/"+id+"/requests", "renter", nil, "Idempotency-Key", "bad key!"), http.StatusBadRequest, "bad_idempotency_key")
}
