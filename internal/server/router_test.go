package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fish-tracker/internal/auth"
	"fish-tracker/internal/gate"
	"fish-tracker/internal/hub"
	"fish-tracker/internal/model"
	"fish-tracker/internal/store"
	"github.com/gin-gonic/gin"
)

const testCreateKey = "create-key"

type testEnv struct {
	router   *Router
	store    *store.Memory
	tokenCfg auth.TokenConfig
	hub      *hub.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.NewMemory(store.MemoryOptions{})
	tokenCfg := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	h := hub.New()
	r := NewRouter(Deps{Store: st, TokenConfig: tokenCfg, Hub: h, CreateUserKey: testCreateKey})
	t.Cleanup(r.Close)
	return &testEnv{router: r, store: st, tokenCfg: tokenCfg, hub: h}
}

func (e *testEnv) seedUser(t *testing.T, id, name, password string) model.User {
	t.Helper()
	key, err := auth.NewUserKey()
	if err != nil {
		t.Fatalf("NewUserKey: %v", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := model.User{ID: id, Name: name, Key: key, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func (e *testEnv) seedAdmin(t *testing.T, username, password, role string) string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := e.store.CreateAdmin(context.Background(), model.Admin{Username: username, PasswordHash: hash, Role: role, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	tok, err := auth.CreateToken(username, role, e.tokenCfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	return tok
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func postToken(path string, token []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(token))
	req.Header.Set("Content-Type", "application/octet-stream")
	return req
}

func adminRequest(method, path, token string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

func seal(t *testing.T, key string, ev model.CatchEvent) []byte {
	t.Helper()
	tok, err := gate.Seal(key, ev)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return tok
}

func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || decode(t, w)["ok"] != true {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}
	if decode(t, w)["database"] != "connected" {
		t.Fatalf("unexpected status body: %s", w.Body.String())
	}
}

func TestIngestFishThenRead(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "u1", "alice", "pw")

	w := env.do(postToken("/post/fish?id=u1&gamemode=earth", seal(t, u.Key, model.FishCatch{Name: "cod", Rarity: 3})))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if msg := decode(t, w)["message"]; msg != "Fish saved for user alice" {
		t.Fatalf("unexpected message %v", msg)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/get/fish?name=alice&gamemode=earth", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "s-maxage=70") {
		t.Fatalf("unexpected Cache-Control %q", cc)
	}
	resp := decode(t, w)
	fish, _ := resp["fish"].([]any)
	if len(fish) != 1 {
		t.Fatalf("expected one fish, got %s", w.Body.String())
	}
	item := fish[0].(map[string]any)
	if item["name"] != "cod" || item["rarity"] != "Gold" || item["rarityCode"] != float64(3) {
		t.Fatalf("unexpected item %v", item)
	}

	// Other gamemodes are separate collections.
	w = env.do(httptest.NewRequest(http.MethodGet, "/get/fish?id=u1&gamemode=oneblock", nil))
	if w.Code != http.StatusOK || decode(t, w)["message"] == nil {
		t.Fatalf("expected empty message, got %d %s", w.Code, w.Body.String())
	}
}

func TestIngestCrabThenRead(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "u1", "alice", "pw")

	req := postToken("/post/crab?id=u1", seal(t, u.Key, model.CrabCatch{}))
	req.Header.Set("X-Gamemode", "boxsmp")
	w := env.do(req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if msg := decode(t, w)["message"]; msg != "Crab saved for user alice" {
		t.Fatalf("unexpected message %v", msg)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/get/crab?id=u1&gamemode=boxsmp", nil))
	resp := decode(t, w)
	if resp["count"] != float64(1) {
		t.Fatalf("unexpected crab body %s", w.Body.String())
	}
}

func TestIngestRejections(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "u1", "alice", "pw")
	other := env.seedUser(t, "u2", "bob", "pw")
	good := seal(t, u.Key, model.FishCatch{Name: "cod", Rarity: 2})

	cases := []struct {
		name   string
		req    *http.Request
		status int
		errMsg string
	}{
		{"missing id", postToken("/post/fish?gamemode=earth", good), http.StatusBadRequest, "Missing user ID in query params"},
		{"missing gamemode", postToken("/post/fish?id=u1", good), http.StatusBadRequest, "Invalid gamemode. Must be one of: oneblock, earth, survival, factions, boxsmp"},
		{"unknown gamemode", postToken("/post/fish?id=u1&gamemode=skyblock", good), http.StatusBadRequest, "Invalid gamemode. Must be one of: oneblock, earth, survival, factions, boxsmp"},
		{"unknown user", postToken("/post/fish?id=ghost&gamemode=earth", good), http.StatusNotFound, "User not found"},
		{"empty body", postToken("/post/fish?id=u1&gamemode=earth", nil), http.StatusBadRequest, "Request body must contain a token"},
		{"garbage token", postToken("/post/fish?id=u1&gamemode=earth", []byte("not-a-token")), http.StatusBadRequest, "Decryption failed or invalid token"},
		{"wrong key", postToken("/post/fish?id=u2&gamemode=earth", good), http.StatusBadRequest, "Decryption failed or invalid token"},
		{"crab token on fish route", postToken("/post/fish?id=u1&gamemode=earth", seal(t, u.Key, model.CrabCatch{})), http.StatusBadRequest, "Invalid data"},
		{"fish token on crab route", postToken("/post/crab?id=u2&gamemode=earth", seal(t, other.Key, model.FishCatch{Name: "cod", Rarity: 1})), http.StatusBadRequest, "Invalid data"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(tc.req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			if got := decode(t, w)["error"]; got != tc.errMsg {
				t.Fatalf("expected error %q, got %v", tc.errMsg, got)
			}
		})
	}

	n, err := env.store.CountCatches(context.Background(), model.Namespace{Kind: model.KindFish, User: "alice", Gamemode: "earth"})
	if err != nil || n != 0 {
		t.Fatalf("rejected submissions must not be stored: n=%d err=%v", n, err)
	}
}

func TestIngestShapeErrorIncludesExpected(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "u1", "alice", "pw")

	w := env.do(postToken("/post/crab?id=u1&gamemode=earth", seal(t, u.Key, model.FishCatch{Name: "cod", Rarity: 1})))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	resp := decode(t, w)
	if _, ok := resp["expected"]; !ok {
		t.Fatalf("expected shape hint in %s", w.Body.String())
	}
}

func TestIngestContentType(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/post/fish?id=u1&gamemode=earth", strings.NewReader("x"))
	req.Header.Set("Content-Type", "application/json")
	w := env.do(req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestIngestBodyTooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u1", "alice", "pw")
	w := env.do(postToken("/post/fish?id=u1&gamemode=earth", bytes.Repeat([]byte("a"), 65<<10)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReadRequiresUserAndGamemode(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "u1", "alice", "pw")

	w := env.do(httptest.NewRequest(http.MethodGet, "/get/fish?gamemode=earth", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	w = env.do(httptest.NewRequest(http.MethodGet, "/get/crab?id=u1&gamemode=nope", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	w = env.do(httptest.NewRequest(http.MethodGet, "/get/fish?id=ghost&gamemode=earth", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestMethodNotAllowedAndNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/post/fish", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
	if decode(t, w)["error"] != "Method not allowed" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUserKeyEndpoint(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "u1", "alice", "hunter22")

	req := httptest.NewRequest(http.MethodGet, "/get/user/key", nil)
	req.SetBasicAuth("alice", "hunter22")
	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decode(t, w)["fernetKey"] != u.Key {
		t.Fatalf("unexpected key body %s", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/get/user/key", nil)
	req.SetBasicAuth("alice", "wrong")
	if w := env.do(req); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	if w := env.do(httptest.NewRequest(http.MethodGet, "/get/user/key", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/get/user/key?name=alice", nil)
	req.SetBasicAuth("alice", "hunter22")
	if w := env.do(req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRotatedKeyInvalidatesOldTokens(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "u1", "alice", "pw")
	admin := env.seedAdmin(t, "root", "rootpassword", model.RoleSuperAdmin)
	old := seal(t, u.Key, model.FishCatch{Name: "cod", Rarity: 1})

	w := env.do(adminRequest(http.MethodPost, "/v1/admin/users/u1/reset?type=key", admin, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("reset: %d %s", w.Code, w.Body.String())
	}
	newKey, _ := decode(t, w)["newFernetKey"].(string)

	if w := env.do(postToken("/post/fish?id=u1&gamemode=earth", old)); w.Code != http.StatusBadRequest {
		t.Fatalf("old token accepted: %d", w.Code)
	}
	if w := env.do(postToken("/post/fish?id=u1&gamemode=earth", seal(t, newKey, model.FishCatch{Name: "cod", Rarity: 1}))); w.Code != http.StatusCreated {
		t.Fatalf("new token rejected: %d %s", w.Code, w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/post/fish", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := env.do(req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "fishtracker_live_connections") {
		t.Fatalf("expected live connection gauge in output")
	}
}

func TestResubmittedTokenAcceptedWithUnboundedTTL(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "ada", "Ada", "pw")
	tok := seal(t, u.Key, model.FishCatch{Name: "Starfin", Rarity: 1})

	for i := 0; i < 2; i++ {
		if w := env.do(postToken("/post/fish?id=ada&gamemode=earth", tok)); w.Code != http.StatusCreated {
			t.Fatalf("submission %d: expected 201, got %d: %s", i+1, w.Code, w.Body.String())
		}
	}
	rows, err := env.store.ListCatches(context.Background(), model.Namespace{Kind: model.KindFish, User: "Ada", Gamemode: "earth"})
	if err != nil {
		t.Fatalf("ListCatches: %v", err)
	}
	if len(rows) != 2 || rows[0].ID == rows[1].ID {
		t.Fatalf("expected two distinct rows, got %+v", rows)
	}
	if rows[0].Rarity == nil || *rows[0].Rarity != 1 {
		t.Fatalf("stored rows must keep the raw rarity code, got %+v", rows[0])
	}
}

func TestUserKeyEndpointRateLimited(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < keyRateLimit; i++ {
		if w := env.do(httptest.NewRequest(http.MethodGet, "/get/user/key", nil)); w.Code != http.StatusUnauthorized {
			t.Fatalf("request %d: expected 401, got %d", i+1, w.Code)
		}
	}
	w := env.do(httptest.NewRequest(http.MethodGet, "/get/user/key", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}
