package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/geo"
	"github.com/tbourn/rent-share-backend/internal/http/middleware"
	"github.com/tbourn/rent-share-backend/internal/media"
	"github.com/tbourn/rent-share-backend/internal/realtime"
	"github.com/tbourn/rent-share-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// UserService manages marketplace profiles.
type UserService interface {
	Sync(ctx context.Context, uid string, c services.ProfileClaims) (*domain.User, bool, error)
	Get(ctx context.Context, uid string) (*domain.User, error)
	UpdateProfile(ctx context.Context, uid string, p services.ProfilePatch) (*domain.User, error)
	UpdateLocation(ctx context.Context, uid string, p geo.Point) (*domain.User, error)
}

// ListingService manages listings and search.
type ListingService interface {
	Create(ctx context.Context, ownerID string, in services.ListingInput) (*domain.Listing, error)
	Get(ctx context.Context, listingID string) (*domain.Listing, error)
	ListByOwner(ctx context.Context, ownerID, viewerID string, page, pageSize int) ([]domain.Listing, int64, error)
	Search(ctx context.Context, q services.SearchQuery) ([]services.ListingHit, int64, error)
	Update(ctx context.Context, ownerID, listingID string, p services.ListingPatch) (*domain.Listing, error)
	Delete(ctx context.Context, ownerID, listingID string) error
}

// TransactionService coordinates requests and their lifecycle.
type TransactionService interface {
	Request(ctx context.Context, renterID, listingID string, in services.RequestInput) (*services.RequestResult, error)
	ListForUser(ctx context.Context, userID, tab string, page, pageSize int) ([]domain.Transaction, int64, error)
	Get(ctx context.Context, userID, txID string) (*domain.Transaction, error)
	ChatFor(ctx context.Context, userID, txID string) (*domain.Chat, error)
	UpdateStatus(ctx context.Context, userID, txID, status string) (*domain.Transaction, error)
	Delete(ctx context.Context, userID, txID string) error
}

// ChatService manages chat threads and their messages.
type ChatService interface {
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Chat, int64, error)
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
	Get(ctx context.Context, userID, chatID string) (*domain.Chat, error)
	EnsureDirect(ctx context.Context, userID, otherID, listingID string) (*domain.Chat, bool, error)
	Send(ctx context.Context, userID, chatID, text, idemKey string) (*domain.Message, bool, error)
	ListMessages(ctx context.Context, userID, chatID string, page, pageSize int) ([]domain.Message, int64, error)
	MessageStats(ctx context.Context, userID, chatID string) (int64, *time.Time, error)
}

// NotificationService reads and acknowledges notifications.
type NotificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]domain.Notification, int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID, notifID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// ReviewService records ratings after completed transactions.
type ReviewService interface {
	Leave(ctx context.Context, userID, txID string, score int, comment string) (*domain.Review, error)
	ListFor(ctx context.Context, userID string, page, pageSize int) ([]domain.Review, int64, error)
}

// Stream registers live event subscribers.
type Stream interface {
	Connect(userID string) (*realtime.Client, error)
	Disconnect(clientID string)
}

//
// Handler wiring
//

// Deps lists the collaborators of Handlers. Uploader and Stream may be nil;
// the matching endpoints then answer 503.
type Deps struct {
	Users         UserService
	Listings      ListingService
	Transactions  TransactionService
	Chats         ChatService
	Notifications NotificationService
	Reviews       ReviewService
	Uploader      media.Uploader
	Stream        Stream
}

// Handlers groups the HTTP endpoints of the marketplace API.
type Handlers struct {
	users    UserService
	listings ListingService
	txs      TransactionService
	chats    ChatService
	notifs   NotificationService
	reviews  ReviewService
	uploader media.Uploader
	stream   Stream
}

// New constructs a Handlers instance bound to the given services.
func New(d Deps) *Handlers {
	return &Handlers{
		users:    d.Users,
		listings: d.Listings,
		txs:      d.Transactions,
		chats:    d.Chats,
		notifs:   d.Notifications,
		reviews:  d.Reviews,
		uploader: d.Uploader,
		stream:   d.Stream,
	}
}

// userID returns the authenticated caller set by middleware.Authenticate.
func userID(c *gin.Context) string {
	return middleware.UserIDFrom(c)
}
