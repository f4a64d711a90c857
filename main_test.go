package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paper-registry/auth"
	"paper-registry/config"
	"paper-registry/editsession"
	"paper-registry/models"
	"paper-registry/projector"
	"paper-registry/services"
	"paper-registry/storage"
)

const (
	timeout = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type testEnv struct {
	store  *storage.MemoryStore
	router *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	cfg := &config.Config{PapersCollection: "papers"}

	store := storage.NewMemoryStore()
	policy, err := editsession.NewPolicy([]string{"title", "authors", "periodKey", "department", "indexingLabel"})
	require.NoError(t, err)
	provider := auth.NewProvider(
		auth.NewMemoryAccountStore(),
		auth.NewTokenIssuer("test-secret", time.Hour),
		auth.NewStaticRoleLookup([]string{"admin@example.org"}),
		auth.LogResetSender{Logger: logger},
		auth.ProviderConfig{MinPasswordLength: 6, ResetTTL: time.Hour},
		logger,
	)
	memo := projector.NewMemo(32, time.Minute)
	hub := services.NewHub(store, cfg.PapersCollection, memo, logger)

	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		_ = hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-hubDone
	})
	require.Eventually(t, hub.Connected, timeout, tick)

	a := &app{
		cfg:      cfg,
		provider: provider,
		roles:    auth.ClaimRoleResolver{},
		store:    store,
		executor: services.NewCommandExecutor(store, cfg.PapersCollection, logger),
		hub:      hub,
		export:   services.NewExportService(hub, nil, logger),
		policy:   policy,
		memo:     memo,
		log:      logger,
	}
	router := gin.New()
	a.setupRoutes(ctx, router)
	return &testEnv{store: store, router: router}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signUp(t *testing.T, email string) auth.Session {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/signup", "", gin.H{
		"email": email, "password": "secret1", "confirm_password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	return s
}

type papersResponse struct {
	Config  projector.Config  `json:"config"`
	Rows    []services.Row    `json:"rows"`
	Choices projector.Choices `json:"choices"`
}

func TestAuthRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "alice@example.org")

	cases := []struct {
		name string
		path string
		body gin.H
		want int
	}{
		{"weak password", "/auth/signup", gin.H{"email": "b@example.org", "password": "123", "confirm_password": "123"}, http.StatusBadRequest},
		{"mismatch", "/auth/signup", gin.H{"email": "b@example.org", "password": "123456", "confirm_password": "654321"}, http.StatusBadRequest},
		{"duplicate", "/auth/signup", gin.H{"email": "alice@example.org", "password": "123456", "confirm_password": "123456"}, http.StatusConflict},
		{"missing body fields", "/auth/signin", gin.H{"email": "alice@example.org"}, http.StatusBadRequest},
		{"wrong password", "/auth/signin", gin.H{"email": "alice@example.org", "password": "nope!!"}, http.StatusUnauthorized},
		{"unknown account", "/auth/signin", gin.H{"email": "ghost@example.org", "password": "secret1"}, http.StatusUnauthorized},
		{"sign in", "/auth/signin", gin.H{"email": "alice@example.org", "password": "secret1"}, http.StatusOK},
		{"reset request", "/auth/password-reset", gin.H{"email": "alice@example.org"}, http.StatusAccepted},
		{"reset with bad token", "/auth/password-reset/confirm", gin.H{"token": "nope", "password": "123456", "confirm_password": "123456"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tc.path, "", tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPapersRoute(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp(t, "alice@example.org")
	admin := env.signUp(t, "admin@example.org")

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/papers", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/papers", "garbage", nil).Code)

	ctx := context.Background()
	for _, doc := range []map[string]any{
		{models.FieldTitle: "Old", models.FieldPeriodKey: "2022-11", models.FieldOwnerIdentity: alice.Identity.ID},
		{models.FieldTitle: "New", models.FieldPeriodKey: "2024-06", models.FieldOwnerIdentity: alice.Identity.ID, models.FieldIndexing: "Scopus (Q1)"},
		{models.FieldTitle: "Theirs", models.FieldPeriodKey: "2023-01", models.FieldOwnerIdentity: "someone-else"},
	} {
		_, err := env.store.Insert(ctx, "papers", doc)
		require.NoError(t, err)
	}

	var resp papersResponse
	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/papers?scope=all", alice.Token, nil)
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &resp) != nil {
			return false
		}
		return len(resp.Rows) == 2
	}, timeout, tick)
	assert.Equal(t, "New", resp.Rows[0].Title)
	assert.Equal(t, "Scopus (Q1)", resp.Rows[0].IndexingDisplay)
	assert.Equal(t, 2, resp.Rows[1].Ordinal)
	assert.Equal(t, projector.OwnerScope(alice.Identity.ID), resp.Config.Scope)

	rec := env.do(t, http.MethodGet, "/papers?sort=title", admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Rows, 3)
	assert.Equal(t, "New", resp.Rows[0].Title)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/papers?sort=colour", admin.Token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/papers?year=abc", admin.Token, nil).Code)

	t.Run("export is admin only", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/admin/papers/export", alice.Token, nil).Code)
		rec := env.do(t, http.MethodGet, "/admin/papers/export", admin.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		assert.Len(t, lines, 4)
		assert.True(t, strings.HasPrefix(lines[0], "No,Title,Authors"))

		rec = env.do(t, http.MethodPost, "/admin/papers/export/upload", admin.Token, nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code, "no uploader configured")
	})

	t.Run("sign out revokes token", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/auth/signout", alice.Token, nil).Code)
		assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/papers", alice.Token, nil).Code)
	})
}

func TestWorkspaceWebsocket(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp(t, "alice@example.org")
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + alice.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readUntil := func(cond func(services.ViewState) bool) services.ViewState {
		t.Helper()
		deadline := time.Now().Add(timeout)
		for {
			require.NoError(t, conn.SetReadDeadline(deadline))
			var st services.ViewState
			require.NoError(t, conn.ReadJSON(&st))
			if cond(st) {
				return st
			}
		}
	}

	readUntil(func(st services.ViewState) bool { return st.SignedIn && st.Generation > 0 })

	for _, in := range []services.Intent{
		{Type: services.IntentBeginCreate},
		{Type: services.IntentSetField, Field: "title", Value: "X"},
		{Type: services.IntentSetField, Field: "authors", Value: "A. Author"},
		{Type: services.IntentSetField, Field: "periodKey", Value: "2024-06"},
		{Type: services.IntentSetField, Field: "department", Value: "Physics"},
		{Type: services.IntentSetField, Field: "indexingLabel", Value: "Scopus"},
		{Type: services.IntentSetField, Field: "quartile", Value: "Q1"},
		{Type: services.IntentSubmit},
	} {
		require.NoError(t, conn.WriteJSON(in))
	}

	st := readUntil(func(st services.ViewState) bool { return len(st.Rows) == 1 })
	assert.Equal(t, "X", st.Rows[0].Title)
	assert.Equal(t, "Scopus (Q1)", st.Rows[0].IndexingDisplay)
	assert.Equal(t, alice.Identity.ID, st.Rows[0].OwnerIdentity)
}
