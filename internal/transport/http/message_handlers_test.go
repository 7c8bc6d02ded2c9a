package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func (e *testEnv) sendMessage(t *testing.T, token, chatID, text string) MessageResponse {
	t.Helper()
	status, body := e.doJSON(t, "POST", "/api/chats/messages", token, map[string]string{
		"chat_id": chatID,
		"text":    text,
	})
	if status != http.StatusCreated {
		t.Fatalf("send message: status %d, body %s", status, body)
	}
	var msg MessageResponse
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}

func TestCreateMessageEndpoint(t *testing.T) {
	env := newTestEnv(t)
	aliceToken, aliceID := env.registerUser(t, "alice")
	_, bobID := env.registerUser(t, "bob")
	eveToken, _ := env.registerUser(t, "eve")

	chatID := env.createPersonalChat(t, aliceToken, bobID)

	msg := env.sendMessage(t, aliceToken, chatID, "hello")
	if msg.ChatID != chatID || msg.SenderID != aliceID || msg.Text != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.IsRead {
		t.Fatal("fresh message must be unread")
	}
	if msg.SenderName != "alice" {
		t.Fatalf("unexpected sender name: %q", msg.SenderName)
	}

	// non-member rejected
	status, _ := env.doJSON(t, "POST", "/api/chats/messages", eveToken, map[string]string{
		"chat_id": chatID,
		"text":    "hi",
	})
	if status != http.StatusForbidden {
		t.Fatalf("non-member send: status %d, want 403", status)
	}

	// unknown chat
	status, _ = env.doJSON(t, "POST", "/api/chats/messages", aliceToken, map[string]string{
		"chat_id": uuid.NewString(),
		"text":    "hi",
	})
	if status != http.StatusNotFound {
		t.Fatalf("unknown chat send: status %d, want 404", status)
	}
}

func TestHistoryMarksMessagesRead(t *testing.T) {
	env := newTestEnv(t)
	aliceToken, _ := env.registerUser(t, "alice")
	bobToken, bobID := env.registerUser(t, "bob")

	chatID := env.createPersonalChat(t, aliceToken, bobID)
	env.sendMessage(t, aliceToken, chatID, "one")
	env.sendMessage(t, aliceToken, chatID, "two")

	// bob fetching history acknowledges alice's messages
	status, body := env.doJSON(t, "GET", "/api/chats/"+chatID+"/history", bobToken, nil)
	if status != http.StatusOK {
		t.Fatalf("history: status %d, body %s", status, body)
	}
	var page HistoryResponse
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 2 || len(page.Messages) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Messages[0].Text != "one" || page.Messages[1].Text != "two" {
		t.Fatalf("history out of order: %+v", page.Messages)
	}

	// alice now sees them read
	status, body = env.doJSON(t, "GET", "/api/chats/"+chatID+"/history", aliceToken, nil)
	if status != http.StatusOK {
		t.Fatalf("history: status %d, body %s", status, body)
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, msg := range page.Messages {
		if !msg.IsRead {
			t.Fatalf("message %q still unread after recipient viewed history", msg.Text)
		}
	}
}

func TestHistoryAccessControl(t *testing.T) {
	env := newTestEnv(t)
	aliceToken, _ := env.registerUser(t, "alice")
	_, bobID := env.registerUser(t, "bob")
	eveToken, _ := env.registerUser(t, "eve")

	chatID := env.createPersonalChat(t, aliceToken, bobID)

	status, _ := env.doJSON(t, "GET", "/api/chats/"+chatID+"/history", eveToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("outsider history: status %d, want 403", status)
	}

	status, _ = env.doJSON(t, "GET", "/api/chats/"+uuid.NewString()+"/history", aliceToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("unknown chat history: status %d, want 404", status)
	}
}

func TestHistoryPaging(t *testing.T) {
	env := newTestEnv(t)
	aliceToken, _ := env.registerUser(t, "alice")
	_, bobID := env.registerUser(t, "bob")

	chatID := env.createPersonalChat(t, aliceToken, bobID)
	for _, text := range []string{"one", "two", "three"} {
		env.sendMessage(t, aliceToken, chatID, text)
	}

	status, body := env.doJSON(t, "GET", "/api/chats/"+chatID+"/history?limit=1&offset=1", aliceToken, nil)
	if status != http.StatusOK {
		t.Fatalf("history page: status %d, body %s", status, body)
	}
	var page HistoryResponse
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 || len(page.Messages) != 1 || page.Messages[0].Text != "two" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestMarkReadEndpoint(t *testing.T) {
	env := newTestEnv(t)
	aliceToken, _ := env.registerUser(t, "alice")
	bobToken, bobID := env.registerUser(t, "bob")
	eveToken, _ := env.registerUser(t, "eve")

	chatID := env.createPersonalChat(t, aliceToken, bobID)
	msg := env.sendMessage(t, aliceToken, chatID, "hello")

	status, body := env.doJSON(t, "POST", "/api/chats/messages/"+msg.ID+"/read", bobToken, nil)
	if status != http.StatusOK {
		t.Fatalf("mark read: status %d, body %s", status, body)
	}
	var receipt ReceiptResponse
	if err := json.Unmarshal(body, &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.MessageID != msg.ID || receipt.UserID != bobID {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	// sender's own mark is acknowledged without a receipt
	status, body = env.doJSON(t, "POST", "/api/chats/messages/"+msg.ID+"/read", aliceToken, nil)
	if status != http.StatusOK {
		t.Fatalf("own mark: status %d, body %s", status, body)
	}
	var ownResp map[string]string
	if err := json.Unmarshal(body, &ownResp); err != nil {
		t.Fatalf("decode own-mark response: %v", err)
	}
	if ownResp["message"] == "" {
		t.Fatalf("expected informational body, got %s", body)
	}

	// outsiders rejected
	status, _ = env.doJSON(t, "POST", "/api/chats/messages/"+msg.ID+"/read", eveToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("outsider mark: status %d, want 403", status)
	}

	// unknown message
	status, _ = env.doJSON(t, "POST", "/api/chats/messages/"+uuid.NewString()+"/read", bobToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("unknown message mark: status %d, want 404", status)
	}
}
