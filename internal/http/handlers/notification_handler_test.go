package handlers

import (
	"net/http"
	"testing"
)

func TestNotifications_ListAndRead(t *testing.T) {
	api := newTestAPI(t, Deps{})
	_, txID, _ := seedRequest(t, api, false)
	if code := putStatus(api, "owner", txID, "active"); code != http.StatusOK {
		t.Fatalf("approve: %d", code)
	}

	var list ListNotificationsResponse
	decode(t, api.do(http.MethodGet, "/notifications", "owner", nil), &list)
	if len(list.Notifications) != 1 || list.Notifications[0].Type != "rental_request" || list.Notifications[0].Read {
		t.Fatalf("owner notifications: %+v", list.Notifications)
	}
	if list.Notifications[0].TransactionID == nil || *list.Notifications[0].TransactionID != txID {
		t.Fatalf("notification not linked to %s", txID)
	}
	id := list.Notifications[0].ID

	// another user cannot acknowledge it
	expectError(t, api.do(http.MethodPost, "/notifications/"+id+"/read", "renter", nil), http.StatusNotFound, ErrCodeNotFound)

	if w := api.do(http.MethodPost, "/notifications/"+id+"/read", "owner", nil); w.Code != http.StatusNoContent {
		t.Fatalf("mark read: %d %s", w.Code, w.Body.String())
	}
	// idempotent
	if w := api.do(http.MethodPost, "/notifications/"+id+"/read", "owner", nil); w.Code != http.StatusNoContent {
		t.Fatalf("mark read again: %d", w.Code)
	}

	decode(t, api.do(http.MethodGet, "/notifications?unread_only=true", "owner", nil), &list)
	if len(list.Notifications) != 0 || list.Pagination.Total != 0 {
		t.Fatalf("unread_only: %+v", list)
	}

	var n UnreadCountResponse
	decode(t, api.do(http.MethodGet, "/notifications/unread-count", "renter", nil), &n)
	if n.Unread != 1 {
		t.Fatalf("renter unread = %d", n.Unread)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	api := newTestAPI(t, Deps{})
	_, _, chatID := seedRequest(t, api, false)
	for _, text := range []string{"hi", "still there?"} {
		if w := api.do(http.MethodPost, "/chats/"+chatID+"/messages", "renter", map[string]string{"text": text}); w.Code != http.StatusCreated {
			t.Fatalf("send: %d", w.Code)
		}
	}

	w := api.do(http.MethodPost, "/notifications/read-all", "owner", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("read-all: %d %s", w.Code, w.Body.String())
	}
	var out MarkAllReadResponse
	decode(t, w, &out)
	if out.Updated != 3 {
		t.Fatalf("updated = %d, want 3", out.Updated)
	}

	var n UnreadCountResponse
	decode(t, api.do(http.MethodGet, "/notifications/unread-count", "owner", nil), &n)
	if n.Unread != 0 {
		t.Fatalf("unread after read-all = %d", n.Unread)
	}

	decode(t, api.do(http.MethodPost, "/notifications/read-all", "owner", nil), &out)
	if out.Updated != 0 {
		t.Fatalf("second read-all updated %d", out.Updated)
	}
}

func TestNotifications_Unauthenticated(t *testing.T) {
	api := newTestAPI(t, Deps{})
	expectError(t, api.do(http.MethodGet, "/notifications", "", nil), http.StatusUnauthorized, ErrCodeUnauthorized)
}
