package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quietink/thoughts/backend/internal/auth"
	"github.com/quietink/thoughts/backend/internal/database"
	"github.com/quietink/thoughts/backend/internal/markdown"
	"github.com/quietink/thoughts/backend/internal/notify"
	"github.com/quietink/thoughts/backend/internal/server"
	"github.com/quietink/thoughts/backend/internal/thoughts"
	"github.com/quietink/thoughts/backend/internal/users"
)

const (
	passphrase = "integration passphrase"
	creatorID  = 1
)

type stack struct {
	server      *httptest.Server
	broadcaster *notify.Broadcaster
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:integration_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("unexpected users service error: %v", err)
	}
	if err := usersService.EnsureUser(context.Background(), creatorID); err != nil {
		t.Fatalf("bootstrap user creation failed: %v", err)
	}

	thoughtsService, err := thoughts.NewService(thoughts.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		t.Fatalf("unexpected thoughts service error: %v", err)
	}

	issuer, err := auth.NewUnlockIssuer(auth.UnlockIssuerConfig{
		UnlockSecret:  passphrase,
		SigningSecret: []byte("integration-signing-secret"),
		Issuer:        "thoughts-auth",
		Audience:      "thoughts-api",
	})
	if err != nil {
		t.Fatalf("unexpected issuer error: %v", err)
	}

	broadcaster := notify.NewBroadcaster()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionGate:     issuer,
		ThoughtsService: thoughtsService,
		Broadcaster:     broadcaster,
		Renderer:        markdown.NewRenderer(),
		CreatorID:       creatorID,
	})
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}

	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)

	return &stack{server: testServer, broadcaster: broadcaster}
}

func (s *stack) request(t *testing.T, method, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := s.server.Client().Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return response, responseBody
}

func (s *stack) unlock(t *testing.T) string {
	t.Helper()

	response, body := s.request(t, http.MethodPost, "/auth/unlock", "", map[string]string{"passphrase": passphrase})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unlock failed with %d: %s", response.StatusCode, body)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("failed to parse unlock response: %v", err)
	}
	return payload.AccessToken
}

type listResponse struct {
	Thoughts []struct {
		ID      int64  `json:"id"`
		Content string `json:"content"`
	} `json:"thoughts"`
	OverallCount int64 `json:"overall_count"`
	HasMore      bool  `json:"has_more"`
	ShortList    bool  `json:"short_list"`
}

func TestUnlockCreatePaginateAndFilter(t *testing.T) {
	s := newStack(t)
	token := s.unlock(t)

	ids := make([]int64, 0, 12)
	for i := 0; i < 12; i++ {
		response, body := s.request(t, http.MethodPost, "/thoughts", token, map[string]string{
			"content": fmt.Sprintf("entry number %d", i),
		})
		if response.StatusCode != http.StatusCreated {
			t.Fatalf("create %d failed with %d: %s", i, response.StatusCode, body)
		}
		var created struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(body, &created); err != nil {
			t.Fatalf("failed to parse create response: %v", err)
		}
		ids = append(ids, created.ID)
	}

	seen := make(map[int64]bool)
	loaded := 0
	for page := 0; page < 3; page++ {
		_, body := s.request(t, http.MethodGet, fmt.Sprintf("/thoughts?page=%d", page), token, nil)
		var list listResponse
		if err := json.Unmarshal(body, &list); err != nil {
			t.Fatalf("failed to parse list response: %v", err)
		}
		if list.OverallCount != 12 {
			t.Fatalf("expected overall count 12, got %d", list.OverallCount)
		}
		for _, item := range list.Thoughts {
			if seen[item.ID] {
				t.Fatalf("page %d repeated id %d", page, item.ID)
			}
			seen[item.ID] = true
			loaded++
		}
		expectMore := page < 2
		if list.HasMore != expectMore {
			t.Fatalf("page %d: expected has_more=%v", page, expectMore)
		}
	}
	if loaded != 12 {
		t.Fatalf("expected to load all 12 entries across pages, got %d", loaded)
	}

	// Substring filter narrows to one record.
	_, body := s.request(t, http.MethodGet, "/thoughts?q=number+7", token, nil)
	var filtered listResponse
	if err := json.Unmarshal(body, &filtered); err != nil {
		t.Fatalf("failed to parse filtered response: %v", err)
	}
	if filtered.OverallCount != 1 || len(filtered.Thoughts) != 1 {
		t.Fatalf("expected one match for 'number 7', got %d", filtered.OverallCount)
	}
	if filtered.Thoughts[0].ID != ids[7] {
		t.Fatalf("unexpected match id %d", filtered.Thoughts[0].ID)
	}

	// Month filter: every entry was written this month.
	bucket := thoughts.SortingDateAt(time.Now().UTC())
	_, body = s.request(t, http.MethodGet, "/thoughts?month="+strings.ReplaceAll(bucket, " ", "+"), token, nil)
	var byMonth listResponse
	if err := json.Unmarshal(body, &byMonth); err != nil {
		t.Fatalf("failed to parse month response: %v", err)
	}
	if byMonth.OverallCount != 12 {
		t.Fatalf("expected all entries in %q, got %d", bucket, byMonth.OverallCount)
	}
}

func TestMutationEventsReachStreamingClients(t *testing.T) {
	s := newStack(t)
	token := s.unlock(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.server.URL+"/thoughts/events", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Accept", "text/event-stream")

	response, err := s.server.Client().Do(request)
	if err != nil {
		t.Fatalf("failed to open event stream: %v", err)
	}
	defer response.Body.Close()

	// The subscription registers once the handler runs; announce repeatedly
	// until the first event comes through.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.broadcaster.AnnounceCreated()
			}
		}
	}()

	scanner := bufio.NewScanner(response.Body)
	sawMutationEvent := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") && strings.Contains(line, "mutation") {
			sawMutationEvent = true
		}
		if sawMutationEvent && strings.HasPrefix(line, "data:") {
			if !strings.Contains(line, `"kind":"created"`) {
				t.Fatalf("unexpected event payload: %s", line)
			}
			return
		}
	}
	t.Fatalf("event stream ended without a mutation event: %v", scanner.Err())
}
