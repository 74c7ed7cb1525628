package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/ws"
)

const testJWTSecret = "test-secret"

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	database := db.NewTestDB(t)
	router := NewRouter(database, ws.NewHub(), testJWTSecret)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

// registerUser creates an account through the API and returns its token
// and user id.
func registerUser(t *testing.T, server *httptest.Server, email string) (string, int64) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": "hunter2hunter2",
		"name":     "Test User",
	})
	resp, err := http.Post(server.URL+"/api/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: %d", resp.StatusCode)
	}

	var reg struct {
		Token string `json:"token"`
		User  struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	json.NewDecoder(resp.Body).Decode(&reg)
	if reg.Token == "" {
		t.Fatal("empty token from register")
	}
	return reg.Token, reg.User.ID
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func doJSON(t *testing.T, req *http.Request, wantStatus int, target any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d", req.Method, req.URL.Path, wantStatus, resp.StatusCode)
	}
	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
}

// createItemViaAPI posts a minimal item and returns its id.
func createItemViaAPI(t *testing.T, server *httptest.Server, token, kind, title string) int64 {
	t.Helper()
	payload := map[string]any{
		"kind":        kind,
		"title":       title,
		"description": "integration test item",
	}
	if kind == "lost" {
		payload["dateLost"] = time.Now().UTC().Format(time.RFC3339)
	} else {
		payload["dateFound"] = time.Now().UTC().Format(time.RFC3339)
	}

	req, _ := authRequest("POST", server.URL+"/api/items", token, payload)
	var item struct {
		ID int64 `json:"id"`
	}
	doJSON(t, req, http.StatusCreated, &item)
	return item.ID
}

func TestRegisterAndLoginFlow(t *testing.T) {
	server := setupTestServer(t)
	token, _ := registerUser(t, server, "flow@example.com")

	// Duplicate registration.
	body, _ := json.Marshal(map[string]string{
		"email": "flow@example.com", "password": "hunter2hunter2", "name": "Dup",
	})
	resp, _ := http.Post(server.URL+"/api/auth/register", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate email: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Wrong password.
	body, _ = json.Marshal(map[string]string{"email": "flow@example.com", "password": "wrong"})
	resp, _ = http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The profile endpoint knows who we are.
	req, _ := authRequest("GET", server.URL+"/api/auth/me", token, nil)
	var me struct {
		Email string `json:"email"`
	}
	doJSON(t, req, http.StatusOK, &me)
	if me.Email != "flow@example.com" {
		t.Errorf("unexpected profile email: %s", me.Email)
	}

	// Logout revokes the token.
	req, _ = authRequest("POST", server.URL+"/api/auth/logout", token, nil)
	doJSON(t, req, http.StatusOK, nil)
	req, _ = authRequest("GET", server.URL+"/api/auth/me", token, nil)
	doJSON(t, req, http.StatusUnauthorized, nil)
}

func TestItemsAPIFlow(t *testing.T) {
	server := setupTestServer(t)
	ownerToken, ownerID := registerUser(t, server, "owner@example.com")
	otherToken, _ := registerUser(t, server, "other@example.com")

	// Creation requires a token.
	body, _ := json.Marshal(map[string]string{"kind": "lost", "title": "x", "description": "y"})
	resp, _ := http.Post(server.URL+"/api/items", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous create: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	itemID := createItemViaAPI(t, server, ownerToken, "lost", "black wallet")

	// A lost item needs its date.
	req, _ := authRequest("POST", server.URL+"/api/items", ownerToken, map[string]string{
		"kind": "lost", "title": "undated", "description": "no date",
	})
	doJSON(t, req, http.StatusBadRequest, nil)

	// Public read.
	resp, err := http.Get(fmt.Sprintf("%s/api/items/%d", server.URL, itemID))
	if err != nil {
		t.Fatalf("getting item: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("public get: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Only the owner may update.
	req, _ = authRequest("PUT", fmt.Sprintf("%s/api/items/%d", server.URL, itemID), otherToken,
		map[string]string{"title": "stolen title"})
	doJSON(t, req, http.StatusForbidden, nil)

	req, _ = authRequest("PUT", fmt.Sprintf("%s/api/items/%d", server.URL, itemID), ownerToken,
		map[string]string{"title": "black leather wallet"})
	var updated struct {
		Title string `json:"title"`
	}
	doJSON(t, req, http.StatusOK, &updated)
	if updated.Title != "black leather wallet" {
		t.Errorf("title not updated: %s", updated.Title)
	}

	// The owner's listing is reachable anonymously.
	resp, err = http.Get(fmt.Sprintf("%s/api/items/user/%d", server.URL, ownerID))
	if err != nil {
		t.Fatalf("listing user items: %v", err)
	}
	var listing struct {
		Items []json.RawMessage `json:"items"`
		Total int               `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decoding listing: %v", err)
	}
	resp.Body.Close()
	if listing.Total != 1 {
		t.Errorf("expected 1 item for owner, got %d", listing.Total)
	}

	// Delete, then 404.
	req, _ = authRequest("DELETE", fmt.Sprintf("%s/api/items/%d", server.URL, itemID), ownerToken, nil)
	doJSON(t, req, http.StatusOK, nil)
	resp, _ = http.Get(fmt.Sprintf("%s/api/items/%d", server.URL, itemID))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted item: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMatchAndMessageFlow(t *testing.T) {
	server := setupTestServer(t)
	loserToken, _ := registerUser(t, server, "loser@example.com")
	finderToken, _ := registerUser(t, server, "finder@example.com")
	outsiderToken, _ := registerUser(t, server, "outsider@example.com")

	lostID := createItemViaAPI(t, server, loserToken, "lost", "blue backpack")
	foundID := createItemViaAPI(t, server, finderToken, "found", "blue backpack")

	// An outsider cannot link two strangers' items.
	matchReq := map[string]any{
		"lostItemId":   lostID,
		"foundItemId":  foundID,
		"confidence":   0.8,
		"matchReasons": []string{"text_similarity"},
	}
	req, _ := authRequest("POST", server.URL+"/api/matches", outsiderToken, matchReq)
	doJSON(t, req, http.StatusForbidden, nil)

	req, _ = authRequest("POST", server.URL+"/api/matches", loserToken, matchReq)
	var match struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	doJSON(t, req, http.StatusCreated, &match)
	if match.Status != "suggested" {
		t.Errorf("expected suggested, got %s", match.Status)
	}

	// Same pair again conflicts.
	req, _ = authRequest("POST", server.URL+"/api/matches", loserToken, matchReq)
	doJSON(t, req, http.StatusConflict, nil)

	// Both participants see it, the outsider does not.
	req, _ = authRequest("GET", fmt.Sprintf("%s/api/matches/%d", server.URL, match.ID), finderToken, nil)
	doJSON(t, req, http.StatusOK, nil)
	req, _ = authRequest("GET", fmt.Sprintf("%s/api/matches/%d", server.URL, match.ID), outsiderToken, nil)
	doJSON(t, req, http.StatusForbidden, nil)

	// Status transition.
	req, _ = authRequest("PUT", fmt.Sprintf("%s/api/matches/%d/status", server.URL, match.ID),
		finderToken, map[string]string{"status": "contacted"})
	var contacted struct {
		Status      string  `json:"status"`
		ContactedAt *string `json:"contactedAt"`
	}
	doJSON(t, req, http.StatusOK, &contacted)
	if contacted.Status != "contacted" || contacted.ContactedAt == nil {
		t.Errorf("contacted transition wrong: %+v", contacted)
	}

	// Messaging.
	req, _ = authRequest("POST", server.URL+"/api/messages", finderToken, map[string]any{
		"matchId": match.ID, "content": "I think I found your backpack",
	})
	var msg struct {
		ReceiverID int64 `json:"receiverId"`
	}
	doJSON(t, req, http.StatusCreated, &msg)

	req, _ = authRequest("POST", server.URL+"/api/messages", outsiderToken, map[string]any{
		"matchId": match.ID, "content": "let me in",
	})
	doJSON(t, req, http.StatusForbidden, nil)

	// The receiver's unread count, then the conversation.
	req, _ = authRequest("GET", server.URL+"/api/messages/unread", loserToken, nil)
	var unread struct {
		Unread int `json:"unread"`
	}
	doJSON(t, req, http.StatusOK, &unread)
	if unread.Unread != 1 {
		t.Errorf("expected 1 unread, got %d", unread.Unread)
	}

	req, _ = authRequest("GET", server.URL+"/api/messages/conversations", loserToken, nil)
	var conv struct {
		Conversations []struct {
			UnreadCount int `json:"unreadCount"`
		} `json:"conversations"`
		Total int `json:"total"`
	}
	doJSON(t, req, http.StatusOK, &conv)
	if conv.Total != 1 || len(conv.Conversations) != 1 || conv.Conversations[0].UnreadCount != 1 {
		t.Errorf("conversation listing wrong: %+v", conv)
	}

	// Listing the thread marks it read.
	req, _ = authRequest("GET", fmt.Sprintf("%s/api/messages/match/%d", server.URL, match.ID), loserToken, nil)
	doJSON(t, req, http.StatusOK, nil)
	req, _ = authRequest("GET", server.URL+"/api/messages/unread", loserToken, nil)
	doJSON(t, req, http.StatusOK, &unread)
	if unread.Unread != 0 {
		t.Errorf("expected 0 unread after listing, got %d", unread.Unread)
	}
}

func TestCandidatesEndpoint(t *testing.T) {
	server := setupTestServer(t)
	loserToken, _ := registerUser(t, server, "loser@example.com")
	finderToken, _ := registerUser(t, server, "finder@example.com")

	lostID := createItemViaAPI(t, server, loserToken, "lost", "silver laptop thinkpad")
	createItemViaAPI(t, server, finderToken, "found", "silver laptop thinkpad")

	req, _ := authRequest("GET", fmt.Sprintf("%s/api/items/%d/candidates", server.URL, lostID), loserToken, nil)
	var result struct {
		Candidates []struct {
			Confidence float64  `json:"confidence"`
			Reasons    []string `json:"matchReasons"`
		} `json:"candidates"`
	}
	doJSON(t, req, http.StatusOK, &result)
	if len(result.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(result.Candidates))
	}
	if result.Candidates[0].Confidence <= 0 || len(result.Candidates[0].Reasons) == 0 {
		t.Errorf("candidate not scored: %+v", result.Candidates[0])
	}

	// Candidates are owner-only.
	req, _ = authRequest("GET", fmt.Sprintf("%s/api/items/%d/candidates", server.URL, lostID), finderToken, nil)
	doJSON(t, req, http.StatusForbidden, nil)
}

func TestHealthEndpoint(t *testing.T) {
	server := setupTestServer(t)
	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
