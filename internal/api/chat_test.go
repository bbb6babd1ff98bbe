package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/eloquentai/eloquent-chat/internal/chat"
	"github.com/eloquentai/eloquent-chat/internal/identity"
	"github.com/eloquentai/eloquent-chat/internal/session"
)

func chatBody(message string) *strings.Reader {
	b, _ := json.Marshal(chatRequest{Message: message})
	return strings.NewReader(string(b))
}

func completedReply() *chat.Reply {
	sess := &session.Session{ID: uuid.New(), Title: "Fees"}
	return &chat.Reply{
		Session: sess,
		Message: &session.Message{
			ID:             uuid.New(),
			SessionID:      sess.ID,
			Role:           session.RoleAssistant,
			Content:        "Wire transfers cost $25.",
			Status:         session.StatusCompleted,
			SequenceNumber: 2,
		},
		Citations: []session.Citation{
			{SourceID: "faq-17", Score: 0.91, Excerpt: "Outgoing wires cost $25.", Category: "Fees"},
		},
	}
}

func TestChatSend(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.orch.reply = completedReply()
	ts.gate.remaining = 2

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody("what do wires cost?"))
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.SessionID != ts.orch.reply.Session.ID.String() {
		t.Errorf("session_id = %q", resp.SessionID)
	}
	if resp.Message.Content != "Wire transfers cost $25." {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].SourceID != "faq-17" {
		t.Errorf("sources = %+v", resp.Sources)
	}
	if resp.QuotaRemaining != 2 {
		t.Errorf("quota_remaining = %d, want 2", resp.QuotaRemaining)
	}

	got := ts.orch.last()
	if got.Question != "what do wires cost?" {
		t.Errorf("question = %q", got.Question)
	}
	if !got.Owner.Anonymous() || got.Owner.AnonToken != "tok-1" {
		t.Errorf("owner = %+v", got.Owner)
	}
}

func TestChatSendRegisteredUserUnlimitedQuota(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.orch.reply = completedReply()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody("hello"))
	req.Header.Set("Authorization", "Bearer "+ts.signer.Issue(uuid.New()))

	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.QuotaRemaining != quotaUnlimited {
		t.Errorf("quota_remaining = %d, want %d", resp.QuotaRemaining, quotaUnlimited)
	}
}

func TestChatSendQuotaExceeded(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.orch.err = identity.ErrQuotaExceeded

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody("one more"))
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "quota_exceeded") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestChatSendInvalidJSON(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("{not json"))
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatSendInvalidSessionID(t *testing.T) {
	ts := newTestServer(t, nil)

	b, _ := json.Marshal(chatRequest{Message: "hi", SessionID: "not-a-uuid"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(string(b)))
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatStream(t *testing.T) {
	ts := newTestServer(t, nil)
	reply := completedReply()
	ts.orch.reply = reply
	ts.orch.events = []chat.Event{
		{Type: chat.EventDelta, Delta: "Wire transfers "},
		{Type: chat.EventDelta, Delta: "cost $25."},
		{Type: chat.EventDone, FullText: "Wire transfers cost $25.", Message: reply.Message},
	}
	ts.gate.remaining = 1

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", chatBody("what do wires cost?"))
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rec.Body.String()
	wantFrames := []string{
		"event: sources\n",
		`"source_id":"faq-17"`,
		"event: content\n",
		`{"content":"Wire transfers "}`,
		"event: metadata\n",
		`"quota_remaining":1`,
		"event: done\ndata: [DONE]\n\n",
	}
	for _, frame := range wantFrames {
		if !strings.Contains(body, frame) {
			t.Errorf("body missing %q:\n%s", frame, body)
		}
	}

	// Sources arrive before any content, content before metadata.
	if strings.Index(body, "event: sources") > strings.Index(body, "event: content") {
		t.Error("sources frame must precede content")
	}
	if strings.Index(body, "event: content") > strings.Index(body, "event: metadata") {
		t.Error("content frames must precede metadata")
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Error("stream must end with the done marker")
	}
}

func TestChatStreamGenerationError(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.orch.reply = completedReply()
	ts.orch.events = []chat.Event{
		{Type: chat.EventDelta, Delta: "partial "},
		{Type: chat.EventError, FullText: "partial ", Err: chat.ErrGenerationFailed},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", chatBody("hello"))
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	body := rec.Body.String()
	if !strings.Contains(body, "event: error\n") {
		t.Errorf("body missing error frame:\n%s", body)
	}
	if !strings.Contains(body, "generation_failed") {
		t.Errorf("body missing error code:\n%s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Error("stream must still end with the done marker")
	}
}

func TestChatStreamQuotaRefusedBeforeStreaming(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.orch.err = identity.ErrQuotaExceeded

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", chatBody("hello"))
	req.AddCookie(anonCookie("tok-1"))

	rec := ts.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("refusal must be plain JSON, got %q", ct)
	}
}
