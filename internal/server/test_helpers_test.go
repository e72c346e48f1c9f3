package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/quietink/thoughts/backend/internal/auth"
	"github.com/quietink/thoughts/backend/internal/markdown"
	"github.com/quietink/thoughts/backend/internal/notify"
	"github.com/quietink/thoughts/backend/internal/thoughts"
	"github.com/quietink/thoughts/backend/internal/users"
	"gorm.io/gorm"
)

const (
	testPassphrase = "open sesame"
	testCreatorID  = 1
)

type routerFixture struct {
	handler     http.Handler
	broadcaster *notify.Broadcaster
	db          *gorm.DB
	clock       *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &thoughts.Thought{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &fakeClock{now: time.Date(2025, time.May, 2, 9, 0, 0, 0, time.UTC)}

	service, err := thoughts.NewService(thoughts.ServiceConfig{Database: db, Clock: clock.Now})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	issuer, err := auth.NewUnlockIssuer(auth.UnlockIssuerConfig{
		UnlockSecret:  testPassphrase,
		SigningSecret: []byte("server-test-signing-secret"),
		Issuer:        "thoughts-auth",
		Audience:      "thoughts-api",
	})
	if err != nil {
		t.Fatalf("unexpected issuer error: %v", err)
	}

	broadcaster := notify.NewBroadcaster()

	handler, err := NewHTTPHandler(Dependencies{
		SessionGate:     issuer,
		ThoughtsService: service,
		Broadcaster:     broadcaster,
		Renderer:        markdown.NewRenderer(),
		CreatorID:       testCreatorID,
	})
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}

	return &routerFixture{
		handler:     handler,
		broadcaster: broadcaster,
		db:          db,
		clock:       clock,
	}
}

func (f *routerFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func (f *routerFixture) unlock(t *testing.T) string {
	t.Helper()

	recorder := f.do(t, http.MethodPost, "/auth/unlock", "", gin.H{"passphrase": testPassphrase})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unlock failed with status %d: %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse unlock response: %v", err)
	}
	if response.AccessToken == "" {
		t.Fatalf("expected an access token")
	}
	return response.AccessToken
}

func decodeThought(t *testing.T, recorder *httptest.ResponseRecorder) thoughtPayload {
	t.Helper()
	var payload thoughtPayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse thought payload: %v", err)
	}
	return payload
}
