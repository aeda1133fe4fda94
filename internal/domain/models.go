// Package domain defines the persistence models for the marketplace: users,
// listings, transactions, chats, messages and notifications. These types are
// mapped with GORM and shared across the repository, service and HTTP layers.
package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User roles chosen during onboarding.
const (
	RoleRent = "rent"
	RoleSwap = "swap"
	RoleBoth = "both"
)

// User is a marketplace member. ID is the subject issued by the identity
// provider, so it is not generated here.
type User struct {
	ID         string    `json:"uid"          gorm:"type:varchar(128);primaryKey"`
	Name       string    `json:"name"         gorm:"type:varchar(255);not null;default:''"`
	Email      string    `json:"email"        gorm:"type:varchar(255);not null;default:'';index"`
	Phone      string    `json:"phone"        gorm:"type:varchar(32);not null;default:''"`
	Verified   bool      `json:"verified"     gorm:"not null;default:false"`
	Wallet     float64   `json:"wallet"       gorm:"not null;default:0"`
	Rating     float64   `json:"rating"       gorm:"not null;default:0"`
	Role       string    `json:"role,omitempty"         gorm:"type:varchar(8);not null;default:''"`
	IDProofURL string    `json:"id_proof_url,omitempty" gorm:"type:text;not null;default:''"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Listing is an item offered for rent or swap by its owner.
//
// Latitude/Longitude place the item on the map. Images holds CDN URLs and is
// stored as a JSON array. BlurHash is the placeholder of the first image.
type Listing struct {
	ID          string                      `json:"id"            gorm:"type:varchar(40);primaryKey"`
	OwnerID     string                      `json:"owner_id"      gorm:"type:varchar(128);not null;index:idx_listing_owner"`
	Title       string                      `json:"title"         gorm:"type:varchar(255);not null"`
	Description string                      `json:"description"   gorm:"type:text;not null;default:''"`
	RentPerDay  float64                     `json:"rent_per_day"  gorm:"not null;default:0;index"`
	SwapAllowed bool                        `json:"swap_allowed"  gorm:"not null;default:false"`
	Category    string                      `json:"category"      gorm:"type:varchar(64);not null;default:'';index"`
	Latitude    float64                     `json:"latitude"      gorm:"not null;default:0;index:idx_listing_geo,priority:1"`
	Longitude   float64                     `json:"longitude"     gorm:"not null;default:0;index:idx_listing_geo,priority:2"`
	Images      datatypes.JSONSlice[string] `json:"images"`
	VideoProof  string                      `json:"video_proof,omitempty" gorm:"type:text;not null;default:''"`
	BlurHash    string                      `json:"blurhash,omitempty"    gorm:"type:varchar(64);not null;default:''"`
	Available   bool                        `json:"available"     gorm:"not null;index:idx_listing_avail,priority:1"`
	CreatedAt   time.Time                   `json:"created_at"    gorm:"index:idx_listing_avail,priority:2"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// TableName returns the database table name for Listing.
func (Listing) TableName() string { return "listings" }

// Transaction kinds.
const (
	TxTypeRent = "rent"
	TxTypeSwap = "swap"
)

// Transaction statuses.
const (
	TxStatusPending   = "pending"
	TxStatusActive    = "active"
	TxStatusCompleted = "completed"
	TxStatusDisputed  = "disputed"
	TxStatusDeclined  = "declined"
)

// Payment modes.
const (
	PaymentOnline  = "online"
	PaymentOffline = "offline"
)

// NormalizeTxStatus lower-cases and trims a status. Older clients stored
// "PENDING"; it maps to pending like every other casing.
func NormalizeTxStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidTxStatus reports whether s is a known transaction status.
func ValidTxStatus(s string) bool {
	switch s {
	case TxStatusPending, TxStatusActive, TxStatusCompleted, TxStatusDisputed, TxStatusDeclined:
		return true
	}
	return false
}

// Transaction records a rent or swap negotiation between a listing owner and
// a renter. ListingTitle is denormalized so history survives listing deletion.
type Transaction struct {
	ID           string    `json:"id"             gorm:"type:varchar(40);primaryKey"`
	ListingID    string    `json:"listing_id"     gorm:"type:varchar(40);not null;index"`
	ListingTitle string    `json:"listing_title"  gorm:"type:varchar(255);not null;default:''"`
	OwnerID      string    `json:"owner_id"       gorm:"type:varchar(128);not null;index:idx_tx_owner,priority:1"`
	RenterID     string    `json:"renter_id"      gorm:"type:varchar(128);not null;index:idx_tx_renter,priority:1"`
	Type         string    `json:"type"           gorm:"type:varchar(8);not null;check:type IN ('rent','swap')"`
	Status       string    `json:"status"         gorm:"type:varchar(16);not null;default:'pending';index"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Amount       float64   `json:"amount"         gorm:"not null;default:0"`
	PaymentMode  string    `json:"payment_mode"   gorm:"type:varchar(8);not null;default:'online'"`
	CreatedAt    time.Time `json:"created_at"     gorm:"index:idx_tx_owner,priority:2;index:idx_tx_renter,priority:2"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// IsParticipant reports whether userID is the owner or the renter.
func (t *Transaction) IsParticipant(userID string) bool {
	return userID != "" && (t.OwnerID == userID || t.RenterID == userID)
}

// Counterpart returns the other participant of the transaction.
func (t *Transaction) Counterpart(userID string) string {
	if t.OwnerID == userID {
		return t.RenterID
	}
	return t.OwnerID
}

// Chat is a message thread between two participants. Chats created from a
// transaction carry its ID; direct chats leave TransactionID empty.
//
// Participants is derived from OwnerID and RenterID and is not stored.
type Chat struct {
	ID            string    `json:"id"             gorm:"type:varchar(40);primaryKey"`
	TransactionID *string   `json:"transaction_id,omitempty" gorm:"type:varchar(40);uniqueIndex"`
	ListingID     string    `json:"listing_id,omitempty"     gorm:"type:varchar(40);not null;default:''"`
	ListingTitle  string    `json:"listing_title,omitempty"  gorm:"type:varchar(255);not null;default:''"`
	OwnerID       string    `json:"-"              gorm:"type:varchar(128);not null;index"`
	RenterID      string    `json:"-"              gorm:"type:varchar(128);not null;index"`
	Participants  []string  `json:"participants"   gorm:"-"`
	LastMessage   string    `json:"last_message"   gorm:"type:text;not null;default:''"`
	LastUpdated   time.Time `json:"last_updated"   gorm:"index"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// AfterFind fills Participants after loading.
func (c *Chat) AfterFind(*gorm.DB) error {
	c.Participants = []string{c.OwnerID, c.RenterID}
	return nil
}

// BeforeCreate fills Participants so freshly created chats serialize the same
// way as loaded ones.
func (c *Chat) BeforeCreate(*gorm.DB) error {
	c.Participants = []string{c.OwnerID, c.RenterID}
	return nil
}

// HasParticipant reports whether userID belongs to the chat.
func (c *Chat) HasParticipant(userID string) bool {
	return userID != "" && (c.OwnerID == userID || c.RenterID == userID)
}

// Counterpart returns the other participant of the chat.
func (c *Chat) Counterpart(userID string) string {
	if c.OwnerID == userID {
		return c.RenterID
	}
	return c.OwnerID
}

// Message is a single chat line. Messages are cascade-deleted with their chat.
type Message struct {
	ID        string    `json:"id"        gorm:"type:varchar(40);primaryKey"`
	ChatID    string    `json:"chat_id"   gorm:"type:varchar(40);not null;index:idx_chat_msgs,priority:1"`
	SenderID  string    `json:"sender_id" gorm:"type:varchar(128);not null"`
	Text      string    `json:"text"      gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_chat_msgs,priority:2"`

	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Notification kinds.
const (
	NotifyRentalRequest     = "rental_request"
	NotifySwapProposal      = "swap_proposal"
	NotifyMessage           = "message"
	NotifyTransactionUpdate = "transaction_update"
)

// Notification is an alert delivered to a single user.
type Notification struct {
	ID            string    `json:"id"              gorm:"type:varchar(40);primaryKey"`
	UserID        string    `json:"user_id"         gorm:"type:varchar(128);not null;index:idx_notif_user,priority:1"`
	Type          string    `json:"type"            gorm:"type:varchar(32);not null;check:type IN ('rental_request','swap_proposal','message','transaction_update')"`
	TransactionID *string   `json:"transaction_id,omitempty" gorm:"type:varchar(40);index"`
	ChatID        *string   `json:"chat_id,omitempty"        gorm:"type:varchar(40)"`
	Message       string    `json:"message"         gorm:"type:text;not null"`
	Read          bool      `json:"read"            gorm:"not null;default:false;index:idx_notif_user,priority:2"`
	CreatedAt     time.Time `json:"created_at"      gorm:"index"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// Review is a 1..5 score a transaction participant leaves for the other party
// once the transaction is completed. One review per participant per
// transaction; reviews are removed with their transaction.
type Review struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	TransactionID string    `json:"transaction_id" gorm:"type:varchar(40);not null;uniqueIndex:ux_review_tx_reviewer,priority:1"`
	ReviewerID    string    `json:"reviewer_id"    gorm:"type:varchar(128);not null;uniqueIndex:ux_review_tx_reviewer,priority:2"`
	RevieweeID    string    `json:"reviewee_id"    gorm:"type:varchar(128);not null;index"`
	Score         int       `json:"score"          gorm:"not null;check:score BETWEEN 1 AND 5"`
	Comment       string    `json:"comment,omitempty" gorm:"type:text;not null;default:''"`
	CreatedAt     time.Time `json:"created_at"`

	Transaction Transaction `json:"-" gorm:"foreignKey:TransactionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Review.
func (Review) TableName() string { return "reviews" }
