package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eloquentai/eloquent-chat/internal/session"
)

func TestSessionList(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.sessions = []*session.Session{
		{ID: uuid.New(), Title: "Card fees", MessageCount: 4, LastMessagePreview: "Replacement cards cost $5.", CreatedAt: time.Now(), UpdatedAt: time.Now()},
		{ID: uuid.New(), Title: "Transfers", MessageCount: 2, CreatedAt: time.Now(), UpdatedAt: time.Now()},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp sessionListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(resp.Sessions))
	}
	if resp.Sessions[0].Title != "Card fees" {
		t.Errorf("title = %q", resp.Sessions[0].Title)
	}
	if resp.Sessions[0].LastMessagePreview != "Replacement cards cost $5." {
		t.Errorf("last_message_preview = %q", resp.Sessions[0].LastMessagePreview)
	}
}

func TestSessionMessagesPaging(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.page = &session.Page{
		Messages: []*session.Message{
			{ID: uuid.New(), Role: session.RoleUser, Content: "hi", Status: session.StatusCompleted, SequenceNumber: 1},
			{ID: uuid.New(), Role: session.RoleAssistant, Content: "hello", Status: session.StatusCompleted, SequenceNumber: 2},
		},
		TotalCount: 10,
		HasMore:    true,
		NextCursor: "Mg",
	}

	target := "/api/v1/sessions/" + uuid.NewString() + "/messages?cursor=abc&limit=2"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if ts.store.lastCursor != "abc" || ts.store.lastLimit != 2 {
		t.Errorf("cursor = %q limit = %d", ts.store.lastCursor, ts.store.lastLimit)
	}

	var resp messagePageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TotalCount != 10 || !resp.HasMore || resp.Cursor != "Mg" {
		t.Errorf("page = %+v", resp)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].SequenceNumber != 1 {
		t.Errorf("messages = %+v", resp.Messages)
	}
}

func TestSessionMessagesInvalidLimit(t *testing.T) {
	ts := newTestServer(t, nil)

	target := "/api/v1/sessions/" + uuid.NewString() + "/messages?limit=zero"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSessionMessagesNotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.err = session.ErrNotFound

	target := "/api/v1/sessions/" + uuid.NewString() + "/messages"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSessionMessagesForbidden(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.err = session.ErrForbidden

	target := "/api/v1/sessions/" + uuid.NewString() + "/messages"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestSessionDelete(t *testing.T) {
	ts := newTestServer(t, nil)

	target := "/api/v1/sessions/" + uuid.NewString()
	req := httptest.NewRequest(http.MethodDelete, target, nil)
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestSessionDeleteInvalidID(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/not-a-uuid", nil)
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
