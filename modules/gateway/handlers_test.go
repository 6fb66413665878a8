package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/chat-relay/config"
	userdomain "github.com/example/chat-relay/domain/user"
	"github.com/example/chat-relay/modules/assistant"
	"github.com/example/chat-relay/modules/auth"
	"github.com/example/chat-relay/modules/chat"
	"github.com/example/chat-relay/modules/relay"
)

// newTestApp wires the real route table over in-memory storage so the
// HTTP surface can be exercised without a listening socket.
func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&userdomain.User{}); err != nil {
		t.Fatalf("failed to migrate users: %v", err)
	}
	chatRepo := chat.NewRepository(db)
	if err := chatRepo.Migrate(); err != nil {
		t.Fatalf("failed to migrate chat tables: %v", err)
	}

	authSvc := auth.NewService(
		auth.NewUserRepository(db),
		auth.NewPasswordHasher(),
		auth.NewJWTManager(auth.JWTConfig{
			SecretKey:            "test-secret",
			AccessTokenDuration:  time.Minute,
			RefreshTokenDuration: time.Hour,
			Issuer:               "test",
		}),
	)

	m := &Module{cfg: &config.AppConfig{
		Server: config.ServerConfig{Port: 3000},
	}}
	m.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
	})
	m.handlers = NewHandlers(
		relay.NewRouter(),
		chat.NewService(chatRepo, nil, nil),
		authSvc,
		assistant.NewClient(assistant.Config{}),
	)
	m.registerRoutes()
	return m.app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("response not JSON: %v (%s)", err, raw)
		}
	}
	return resp.StatusCode, decoded
}

func registerAndLogin(t *testing.T, app *fiber.App, email, username string) string {
	t.Helper()

	code, _ := doJSON(t, app, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
		Email: email, Username: username, Password: "password123",
	})
	if code != http.StatusCreated {
		t.Fatalf("register returned %d", code)
	}
	code, body := doJSON(t, app, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{
		Email: email, Password: "password123",
	})
	if code != http.StatusOK {
		t.Fatalf("login returned %d", code)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatal("login returned no access token")
	}
	return token
}

func TestGateway_AuthFlow(t *testing.T) {
	app := newTestApp(t)

	code, _ := doJSON(t, app, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
		Email: "alice@example.com", Username: "alice", Password: "password123",
	})
	if code != http.StatusCreated {
		t.Fatalf("register returned %d, want 201", code)
	}

	code, _ = doJSON(t, app, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{
		Email: "alice@example.com", Username: "alice", Password: "password123",
	})
	if code != http.StatusConflict {
		t.Errorf("duplicate register returned %d, want 409", code)
	}

	code, _ = doJSON(t, app, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{
		Email: "alice@example.com", Password: "wrong-password",
	})
	if code != http.StatusUnauthorized {
		t.Errorf("bad password login returned %d, want 401", code)
	}

	code, body := doJSON(t, app, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{
		Email: "alice@example.com", Password: "password123",
	})
	if code != http.StatusOK {
		t.Fatalf("login returned %d, want 200", code)
	}
	refresh, _ := body["refresh_token"].(string)
	if refresh == "" {
		t.Fatal("login returned no refresh token")
	}

	code, body = doJSON(t, app, http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{
		RefreshToken: refresh,
	})
	if code != http.StatusOK {
		t.Fatalf("refresh returned %d, want 200", code)
	}
	if tok, _ := body["access_token"].(string); tok == "" {
		t.Error("refresh returned no access token")
	}
}

func TestGateway_ProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/rooms"},
		{http.MethodPost, "/api/v1/rooms"},
		{http.MethodGet, "/api/v1/rooms/r1/messages"},
		{http.MethodPost, "/api/v1/ai/chat"},
	} {
		code, _ := doJSON(t, app, route.method, route.path, "", nil)
		if code != http.StatusUnauthorized {
			t.Errorf("%s %s without token returned %d, want 401", route.method, route.path, code)
		}
	}
}

func TestGateway_RoomsAndMessages(t *testing.T) {
	app := newTestApp(t)
	alice := registerAndLogin(t, app, "alice@example.com", "alice")
	bob := registerAndLogin(t, app, "bob@example.com", "bob")

	code, room := doJSON(t, app, http.MethodPost, "/api/v1/rooms", alice, CreateRoomRequest{
		Name: "general", Description: "main channel",
	})
	if code != http.StatusCreated {
		t.Fatalf("create room returned %d, want 201", code)
	}
	roomID, _ := room["id"].(string)
	if roomID == "" {
		t.Fatal("created room has no id")
	}

	code, body := doJSON(t, app, http.MethodGet, "/api/v1/rooms", alice, nil)
	if code != http.StatusOK {
		t.Fatalf("list rooms returned %d, want 200", code)
	}
	if total, _ := body["total"].(float64); total != 1 {
		t.Errorf("list rooms total = %v, want 1", body["total"])
	}

	code, _ = doJSON(t, app, http.MethodGet, "/api/v1/rooms/no-such-room", alice, nil)
	if code != http.StatusNotFound {
		t.Errorf("unknown room returned %d, want 404", code)
	}

	for i := 0; i < 3; i++ {
		code, _ = doJSON(t, app, http.MethodPost, "/api/v1/rooms/"+roomID+"/messages", alice, PostMessageRequest{
			Content: fmt.Sprintf("message %d", i),
		})
		if code != http.StatusCreated {
			t.Fatalf("post message returned %d, want 201", code)
		}
	}

	// Bob never joined; history is members-only.
	code, _ = doJSON(t, app, http.MethodGet, "/api/v1/rooms/"+roomID+"/messages", bob, nil)
	if code != http.StatusForbidden {
		t.Errorf("non-member history returned %d, want 403", code)
	}

	code, _ = doJSON(t, app, http.MethodPost, "/api/v1/rooms/"+roomID+"/join", bob, nil)
	if code != http.StatusNoContent {
		t.Fatalf("join room returned %d, want 204", code)
	}

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/rooms/"+roomID+"/messages", bob, nil)
	if code != http.StatusOK {
		t.Fatalf("member history returned %d, want 200", code)
	}
	if total, _ := body["total"].(float64); total != 3 {
		t.Errorf("history total = %v, want 3", body["total"])
	}

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/rooms/"+roomID+"/members", alice, nil)
	if code != http.StatusOK {
		t.Fatalf("list members returned %d, want 200", code)
	}
	if total, _ := body["total"].(float64); total != 2 {
		t.Errorf("members total = %v, want 2", body["total"])
	}
}

func TestGateway_MessageValidation(t *testing.T) {
	app := newTestApp(t)
	alice := registerAndLogin(t, app, "alice@example.com", "alice")

	code, room := doJSON(t, app, http.MethodPost, "/api/v1/rooms", alice, CreateRoomRequest{Name: "general"})
	if code != http.StatusCreated {
		t.Fatalf("create room returned %d, want 201", code)
	}
	roomID := room["id"].(string)

	code, _ = doJSON(t, app, http.MethodPost, "/api/v1/rooms/"+roomID+"/messages", alice, PostMessageRequest{Content: ""})
	if code != http.StatusBadRequest {
		t.Errorf("empty message returned %d, want 400", code)
	}

	code, _ = doJSON(t, app, http.MethodPost, "/api/v1/rooms", alice, CreateRoomRequest{Name: ""})
	if code != http.StatusBadRequest {
		t.Errorf("empty room name returned %d, want 400", code)
	}
}

func TestGateway_AIChatWithoutKey(t *testing.T) {
	app := newTestApp(t)
	alice := registerAndLogin(t, app, "alice@example.com", "alice")

	code, room := doJSON(t, app, http.MethodPost, "/api/v1/rooms", alice, CreateRoomRequest{Name: "general"})
	if code != http.StatusCreated {
		t.Fatalf("create room returned %d, want 201", code)
	}
	roomID := room["id"].(string)

	code, body := doJSON(t, app, http.MethodPost, "/api/v1/ai/chat", alice, AIChatRequest{
		RoomID: roomID, Message: "hello",
	})
	if code != http.StatusInternalServerError {
		t.Fatalf("ai chat without key returned %d, want 500", code)
	}
	if body["error"] != "failed to get AI response" {
		t.Errorf("error = %v, want completion failure", body["error"])
	}
}
