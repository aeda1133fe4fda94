package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/rent-share-backend/internal/config"
	"github.com/tbourn/rent-share-backend/internal/events"
	"github.com/tbourn/rent-share-backend/internal/http/middleware"
	"github.com/tbourn/rent-share-backend/internal/repo"
	"github.com/tbourn/rent-share-backend/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("api_%d.db", time.Now().UnixNano()))

	db, err := gorm.Open(sqlite.Open(dsn+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type testAPI struct {
	t  *testing.T
	db *gorm.DB
	r  *gin.Engine
}

// newTestAPI wires the real services on a fresh database behind header
// authentication, with routes registered like the production router.
func newTestAPI(t *testing.T, d Deps) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		t.Fatalf("register validators: %v", err)
	}

	db := newTestDB(t)
	pub := events.Nop{}
	if d.Users == nil {
		d.Users = &services.UserService{DB: db}
	}
	if d.Listings == nil {
		d.Listings = &services.ListingService{DB: db, SearchRadiusKM: 25, MaxRadiusKM: 200}
	}
	if d.Transactions == nil {
		d.Transactions = &services.TransactionService{DB: db, Events: pub, DefaultRentalDays: 7, IdempotencyTTL: time.Hour}
	}
	if d.Chats == nil {
		d.Chats = &services.ChatService{DB: db, Events: pub, IdempotencyTTL: time.Hour}
	}
	if d.Notifications == nil {
		d.Notifications = &services.NotificationService{DB: db, Events: pub}
	}
	if d.Reviews == nil {
		d.Reviews = &services.ReviewService{DB: db, Events: pub}
	}
	h := New(d)

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Authenticate(middleware.AuthOptions{Mode: config.AuthModeHeader}),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil),
	)
	api := r.Group("/api/v1")
	api.POST("/users/me/sync", h.SyncProfile)
	api.GET("/users/me", h.GetMe)
	api.PATCH("/users/me", h.UpdateMe)
	api.PUT("/users/me/location", h.UpdateMyLocation)
	api.GET("/users/:id", h.GetUser)
	api.GET("/users/:id/listings", h.ListUserListings)
	api.GET("/users/:id/reviews", h.ListUserReviews)
	api.POST("/listings", h.CreateListing)
	api.GET("/listings", h.SearchListings)
	api.GET("/listings/:id", h.GetListing)
	api.PATCH("/listings/:id", h.UpdateListing)
	api.DELETE("/listings/:id", h.DeleteListing)
	api.POST("/listings/:id/requests", h.CreateRequest)
	api.GET("/transactions", h.ListTransactions)
	api.GET("/transactions/:id", h.GetTransaction)
	api.PUT("/transactions/:id/status", h.UpdateTransactionStatus)
	api.DELETE("/transactions/:id", h.DeleteTransaction)
	api.GET("/transactions/:id/chat", h.GetTransactionChat)
	api.POST("/transactions/:id/review", h.LeaveReview)
	api.GET("/chats", h.ListChats)
	api.POST("/chats", h.StartChat)
	api.GET("/chats/:id", h.GetChat)
	api.GET("/chats/:id/messages", h.ListMessages)
	api.POST("/chats/:id/messages", h.PostMessage)
	api.GET("/notifications", h.ListNotifications)
	api.GET("/notifications/unread-count", h.UnreadCount)
	api.POST("/notifications/read-all", h.MarkAllNotificationsRead)
	api.POST("/notifications/:id/read", h.MarkNotificationRead)
	api.POST("/uploads", h.UploadMedia)
	api.GET("/stream", h.StreamEvents)

	return &testAPI{t: t, db: db, r: r}
}

// do sends a request as uid (empty for anonymous). body may be nil, a string
// or any JSON-encodable value.
func (a *testAPI) do(method, path, uid string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != "" {
		req.Header.Set(middleware.HeaderUserID, uid)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

// sync creates the profile of uid.
func (a *testAPI) sync(uid, name string) {
	a.t.Helper()
	w := a.do(http.MethodPost, "/users/me/sync", uid, map[string]string{"name": name})
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		a.t.Fatalf("sync %s: %d %s", uid, w.Code, w.Body.String())
	}
}

// listing creates a listing owned by uid and returns its ID.
func (a *testAPI) listing(uid string, body map[string]any) string {
	a.t.Helper()
	w := a.do(http.MethodPost, "/listings", uid, body)
	if w.Code != http.StatusCreated {
		a.t.Fatalf("create listing: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		ID string `json:"id"`
	}
	decode(a.t, w, &out)
	return out.ID
}

// request files a request on listingID as uid and returns the created
// transaction and chat IDs.
func (a *testAPI) request(uid, listingID string, body any) (txID, chatID string) {
	a.t.Helper()
	w := a.do(http.MethodPost, "/listings/"+listingID+"/requests", uid, body)
	if w.Code != http.StatusCreated {
		a.t.Fatalf("request: %d %s", w.Code, w.Body.String())
	}
	var out RequestCreatedResponse
	decode(a.t, w, &out)
	return out.Transaction.ID, out.Chat.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, status, w.Body.String())
	}
	var er ErrorResponse
	decode(t, w, &er)
	if er.Code != code {
		t.Fatalf("code = %q, want %q (message=%q)", er.Code, code, er.Message)
	}
	if er.RequestID == "" {
		t.Fatalf("error envelope without request_id")
	}
}
