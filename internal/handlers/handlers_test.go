package handlers

import (
	"bytes"
	"chatcore/internal/auth"
	"chatcore/internal/chat"
	"chatcore/internal/config"
	"chatcore/internal/database"
	"chatcore/internal/hub"
	"chatcore/internal/jwt"
	"chatcore/internal/keyValue"
	"chatcore/internal/models"
	"chatcore/internal/presence"
	"chatcore/internal/snowflake"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testAPI struct {
	t      *testing.T
	router http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	sugar := zap.NewNop().Sugar()
	cfg := &config.ConfigFile{Address: "127.0.0.1", Port: "0", LogLevel: "info"}

	db, err := database.OpenSqlite(":memory:", sugar)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	store := database.NewStore(db, sugar)

	ids, err := snowflake.New(1)
	if err != nil {
		t.Fatal(err)
	}
	kv := keyValue.New(sugar, nil)
	tracker := presence.New(kv, time.Minute)
	tokens := jwt.New("access-secret", "refresh-secret", time.Minute, time.Hour)

	h := hub.New(sugar, tracker, hub.Options{SendBuffer: 64})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	authService := auth.New(store, kv, tokens, ids, tracker, sugar, bcrypt.MinCost)
	engine := chat.New(store, ids, h, tracker, sugar)

	return &testAPI{t: t, router: New(cfg, sugar, authService, engine, h, store).Router()}
}

func (a *testAPI) do(method string, path string, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			a.t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type session struct {
	user  models.User
	token string
}

func (a *testAPI) register(username string) session {
	a.t.Helper()

	rec := a.do("POST", "/api/auth/register", "", map[string]string{
		"username":        username,
		"email":           username + "@example.com",
		"password":        "Secret123",
		"confirmPassword": "Secret123",
	})
	if rec.Code != http.StatusCreated {
		a.t.Fatalf("register %s: %d %s", username, rec.Code, rec.Body.String())
	}
	resp := decodeBody[sessionResponse](a.t, rec)
	return session{user: resp.User, token: resp.Tokens.AccessToken}
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("alice")

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       any
		wantStatus int
	}{
		{name: "me without token", method: "GET", path: "/api/user/me", wantStatus: http.StatusUnauthorized},
		{name: "me with garbage token", method: "GET", path: "/api/user/me", token: "garbage", wantStatus: http.StatusUnauthorized},
		{name: "me", method: "GET", path: "/api/user/me", token: alice.token, wantStatus: http.StatusOK},
		{name: "login", method: "POST", path: "/api/auth/login", body: map[string]string{"email": "alice@example.com", "password": "Secret123"}, wantStatus: http.StatusOK},
		{name: "wrong password", method: "POST", path: "/api/auth/login", body: map[string]string{"email": "alice@example.com", "password": "nope"}, wantStatus: http.StatusUnauthorized},
		{name: "duplicate username", method: "POST", path: "/api/auth/register", body: map[string]string{
			"username": "alice", "email": "other@example.com", "password": "Secret123", "confirmPassword": "Secret123",
		}, wantStatus: http.StatusBadRequest},
		{name: "health", method: "GET", path: "/healthz", wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.method, tt.path, tt.token, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}

	rec := api.do("POST", "/api/auth/logout", alice.token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", rec.Code)
	}
	if rec := api.do("GET", "/api/user/me", alice.token, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected logged out token to be rejected, got %d", rec.Code)
	}
}

func TestRequestValidation(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do("POST", "/api/auth/register", "", map[string]string{
		"username":        "alice",
		"email":           "not-an-email",
		"password":        "Secret123",
		"confirmPassword": "Secret124",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Fields["Email"] != "email" || resp.Fields["Password"] != "eqfield" {
		t.Errorf("unexpected field errors %+v", resp.Fields)
	}

	alice := api.register("alice")
	req := httptest.NewRequest("POST", "/api/chat/group", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+alice.token)
	malformed := httptest.NewRecorder()
	api.router.ServeHTTP(malformed, req)
	if malformed.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", malformed.Code)
	}

	if rec := api.do("GET", "/api/chat/abc", alice.token, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad id, got %d", rec.Code)
	}
}

func TestChatErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("alice")
	bob := api.register("bob")
	carol := api.register("carol")

	rec := api.do("POST", "/api/chat/group", alice.token, map[string]any{
		"name":      "Team",
		"memberIds": []string{fmt.Sprint(bob.user.ID)},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create group: %d %s", rec.Code, rec.Body.String())
	}
	team := decodeBody[models.Chat](t, rec)
	messagesPath := fmt.Sprintf("/api/chat/%d/messages", team.ID)

	rec = api.do("POST", messagesPath, bob.token, map[string]string{"content": "hi"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: %d %s", rec.Code, rec.Body.String())
	}
	message := decodeBody[models.Message](t, rec)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       any
		wantStatus int
	}{
		{name: "non member lists", method: "GET", path: messagesPath, token: carol.token, wantStatus: http.StatusForbidden},
		{name: "non member sends", method: "POST", path: messagesPath, token: carol.token, body: map[string]string{"content": "hey"}, wantStatus: http.StatusForbidden},
		{name: "missing chat", method: "GET", path: "/api/chat/12345", token: alice.token, wantStatus: http.StatusNotFound},
		{name: "empty content", method: "POST", path: messagesPath, token: alice.token, body: map[string]string{"content": " "}, wantStatus: http.StatusBadRequest},
		{name: "edit someone else's", method: "PATCH", path: fmt.Sprintf("/api/message/%d", message.ID), token: alice.token, body: map[string]string{"content": "x"}, wantStatus: http.StatusForbidden},
		{name: "react", method: "POST", path: fmt.Sprintf("/api/message/%d/reactions", message.ID), token: alice.token, body: map[string]string{"emoji": "👍"}, wantStatus: http.StatusCreated},
		{name: "react twice", method: "POST", path: fmt.Sprintf("/api/message/%d/reactions", message.ID), token: alice.token, body: map[string]string{"emoji": "👍"}, wantStatus: http.StatusBadRequest},
		{name: "unreact", method: "DELETE", path: fmt.Sprintf("/api/message/%d/reactions/%s", message.ID, "%F0%9F%91%8D"), token: alice.token, wantStatus: http.StatusNoContent},
		{name: "delete", method: "DELETE", path: fmt.Sprintf("/api/message/%d", message.ID), token: bob.token, wantStatus: http.StatusOK},
		{name: "delete again", method: "DELETE", path: fmt.Sprintf("/api/message/%d", message.ID), token: bob.token, wantStatus: http.StatusBadRequest},
		{name: "list", method: "GET", path: messagesPath + "?limit=10", token: alice.token, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.method, tt.path, tt.token, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestServerOwnerCantBeKicked(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("alice")
	bob := api.register("bob")

	rec := api.do("POST", "/api/server/", alice.token, map[string]string{"name": "Guild"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create server: %d %s", rec.Code, rec.Body.String())
	}
	server := decodeBody[models.Server](t, rec)

	rec = api.do("POST", fmt.Sprintf("/api/server/%d/members", server.ID), alice.token, map[string]string{"userId": fmt.Sprint(bob.user.ID)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add member: %d %s", rec.Code, rec.Body.String())
	}

	kick := fmt.Sprintf("/api/server/%d/members/%d", server.ID, alice.user.ID)
	for _, s := range []session{alice, bob} {
		if rec := api.do("DELETE", kick, s.token, nil); rec.Code != http.StatusForbidden {
			t.Errorf("%s removing the owner: expected 403, got %d", s.user.Username, rec.Code)
		}
	}

	rec = api.do("GET", fmt.Sprintf("/api/server/%d/roles", server.ID), bob.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list roles: %d", rec.Code)
	}
	if roles := decodeBody[[]models.Role](t, rec); len(roles) != 4 {
		t.Errorf("expected 4 default roles, got %d", len(roles))
	}
}

func TestWebSocketReceivesEvents(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register("alice")
	bob := api.register("bob")

	rec := api.do("POST", "/api/chat/private", alice.token, map[string]string{"userId": fmt.Sprint(bob.user.ID)})
	if rec.Code != http.StatusOK {
		t.Fatalf("create private chat: %d %s", rec.Code, rec.Body.String())
	}
	private := decodeBody[models.Chat](t, rec)

	server := httptest.NewServer(api.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + bob.token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	room := hub.ChatRoom(private.ID)
	if err := ws.WriteJSON(map[string]string{"type": "join", "room": string(room)}); err != nil {
		t.Fatal(err)
	}

	var frame hub.Event
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != hub.RoomJoined {
		t.Fatalf("expected %s, got %s", hub.RoomJoined, frame.Type)
	}

	rec = api.do("POST", fmt.Sprintf("/api/chat/%d/messages", private.ID), alice.token, map[string]string{"content": "hello bob"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: %d %s", rec.Code, rec.Body.String())
	}

	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != hub.MessageCreated || frame.Room != room || frame.Seq != 1 {
		t.Errorf("unexpected frame %+v", frame)
	}

	// joining someone else's chat is refused with an error frame
	if err := ws.WriteJSON(map[string]string{"type": "join", "room": "chat:999"}); err != nil {
		t.Fatal(err)
	}
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != hub.ErrorMessage {
		t.Errorf("expected an error frame, got %s", frame.Type)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	api := newTestAPI(t)
	server := httptest.NewServer(api.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %+v", resp)
	}
}
