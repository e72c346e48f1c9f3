package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/quietink/thoughts/backend/internal/auth"
	"github.com/quietink/thoughts/backend/internal/feed"
	"github.com/quietink/thoughts/backend/internal/notify"
	"github.com/quietink/thoughts/backend/internal/thoughts"
	"go.uber.org/zap"
)

const creatorIDContextKey = "thoughts_creator_id"

var (
	errMissingSessionGate     = errors.New("session gate dependency required")
	errMissingThoughtsService = errors.New("thoughts service dependency required")
	errMissingBroadcaster     = errors.New("broadcaster dependency required")
	errMissingRenderer        = errors.New("renderer dependency required")
	errMissingCreatorID       = errors.New("bootstrap creator id required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// SessionGate issues and validates local session tokens.
type SessionGate interface {
	Unlock(passphrase string, userID int64) (string, int64, error)
	ValidateToken(token string) (int64, error)
}

// HTMLRenderer converts markdown content to an HTML fragment.
type HTMLRenderer interface {
	RenderHTML(content string) (string, error)
}

// Dependencies wires the HTTP surface to the application services.
type Dependencies struct {
	SessionGate     SessionGate
	ThoughtsService *thoughts.Service
	Broadcaster     *notify.Broadcaster
	Renderer        HTMLRenderer
	CreatorID       int64
	Logger          *zap.Logger
}

// NewHTTPHandler builds the gin handler exposing the thoughts API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionGate == nil {
		return nil, errMissingSessionGate
	}
	if deps.ThoughtsService == nil {
		return nil, errMissingThoughtsService
	}
	if deps.Broadcaster == nil {
		return nil, errMissingBroadcaster
	}
	if deps.Renderer == nil {
		return nil, errMissingRenderer
	}
	if deps.CreatorID <= 0 {
		return nil, errMissingCreatorID
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions:    deps.SessionGate,
		service:     deps.ThoughtsService,
		broadcaster: deps.Broadcaster,
		renderer:    deps.Renderer,
		creatorID:   deps.CreatorID,
		logger:      logger,
	}

	router.POST("/auth/unlock", handler.handleUnlock)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/thoughts", handler.handleCreateThought)
	protected.GET("/thoughts", handler.handleListThoughts)
	protected.DELETE("/thoughts", handler.handleDeleteAllThoughts)
	protected.GET("/thoughts/months", handler.handleListMonths)
	protected.GET("/thoughts/events", handler.handleEvents)
	protected.GET("/thoughts/:id", handler.handleGetThought)
	protected.PUT("/thoughts/:id", handler.handleUpdateThought)
	protected.DELETE("/thoughts/:id", handler.handleDeleteThought)
	protected.GET("/thoughts/:id/html", handler.handleRenderThought)

	return router, nil
}

type httpHandler struct {
	sessions    SessionGate
	service     *thoughts.Service
	broadcaster *notify.Broadcaster
	renderer    HTMLRenderer
	creatorID   int64
	logger      *zap.Logger
}

type unlockRequestPayload struct {
	Passphrase string `json:"passphrase"`
}

type unlockResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleUnlock(c *gin.Context) {
	var request unlockRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Passphrase == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.sessions.Unlock(request.Passphrase, h.creatorID)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPassphrase) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, unlockResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type thoughtPayload struct {
	ID          int64     `json:"id"`
	Content     string    `json:"content"`
	SortingDate string    `json:"sorting_date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func renderThoughtPayload(thought thoughts.Thought) thoughtPayload {
	return thoughtPayload{
		ID:          thought.ID,
		Content:     thought.Content,
		SortingDate: thought.SortingDate,
		CreatedAt:   thought.CreatedAt,
		UpdatedAt:   thought.UpdatedAt,
	}
}

type mutateThoughtPayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleCreateThought(c *gin.Context) {
	creatorID, ok := h.requestCreator(c)
	if !ok {
		return
	}

	var request mutateThoughtPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	content, err := thoughts.NewContent(request.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_content"})
		return
	}

	thought, err := h.service.CreateThought(c.Request.Context(), creatorID, content)
	if err != nil {
		h.logger.Error("failed to create thought", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	h.broadcaster.AnnounceCreated()
	c.JSON(http.StatusCreated, renderThoughtPayload(thought))
}

func (h *httpHandler) handleUpdateThought(c *gin.Context) {
	creatorID, ok := h.requestCreator(c)
	if !ok {
		return
	}
	thoughtID, ok := pathThoughtID(c)
	if !ok {
		return
	}

	var request mutateThoughtPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	content, err := thoughts.NewContent(request.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_content"})
		return
	}

	if err := h.service.UpdateThought(c.Request.Context(), creatorID, thoughtID, content); err != nil {
		if errors.Is(err, thoughts.ErrThoughtNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to update thought", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
		return
	}

	h.broadcaster.AnnounceEdited()
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDeleteThought(c *gin.Context) {
	creatorID, ok := h.requestCreator(c)
	if !ok {
		return
	}
	thoughtID, ok := pathThoughtID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteThought(c.Request.Context(), creatorID, thoughtID); err != nil {
		if errors.Is(err, thoughts.ErrThoughtNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to delete thought", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}

	h.broadcaster.AnnounceDeleted()
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDeleteAllThoughts(c *gin.Context) {
	creatorID, ok := h.requestCreator(c)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteAllThoughts(c.Request.Context(), creatorID)
	if err != nil {
		h.logger.Error("failed to delete thoughts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}

	if deleted > 0 {
		h.broadcaster.AnnounceDeleted()
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *httpHandler) handleGetThought(c *gin.Context) {
	creatorID, ok := h.requestCreator(c)
	if !ok {
		return
	}
	thoughtID, ok := pathThoughtID(c)
	if !ok {
		return
	}

	thought, err := h.service.GetThought(c.Request.Context(), creatorID, thoughtID)
	if err != nil {
		if errors.Is(err, thoughts.ErrThoughtNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to load thought", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}

	c.JSON(http.StatusOK, renderThoughtPayload(thought))
}

type listResponsePayload struct {
	Thoughts     []thoughtPayload `json:"thoughts"`
	OverallCount int64            `json:"overall_count"`
	Page         int              `json:"page"`
	HasMore      bool             `json:"has_more"`
	ShortList    bool             `json:"short_list"`
}

func (h *httpHandler) handleListThoughts(c *gin.Context) {
	creatorID, ok := h.requestCreator(c)
	if !ok {
		return
	}

	pageIndex := 0
	if raw := c.Query("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page"})
			return
		}
		pageIndex = parsed
	}

	text := c.Query("q")
	// The month parameter is tri-state: absent means no filter, while an
	// explicitly empty value matches entries with an empty sorting bucket.
	var dateFilter *string
	if values, present := c.Request.URL.Query()["month"]; present {
		dateFilter = &values[0]
	}

	var (
		page  []thoughts.Thought
		count int64
		err   error
	)
	if text == "" && dateFilter == nil {
		count, err = h.service.CountThoughts(c.Request.Context(), creatorID)
		if err == nil {
			page, err = h.service.ListThoughts(c.Request.Context(), creatorID, pageIndex)
		}
	} else {
		count, err = h.service.CountFilteredThoughts(c.Request.Context(), creatorID, text, dateFilter)
		if err == nil {
			page, err = h.service.ListFilteredThoughts(c.Request.Context(), creatorID, pageIndex, text, dateFilter)
		}
	}
	if err != nil {
		h.logger.Error("failed to list thoughts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}

	payload := listResponsePayload{
		Thoughts:     make([]thoughtPayload, 0, len(page)),
		OverallCount: count,
		Page:         pageIndex,
		HasMore:      feed.ShouldFetchNext(count, pageIndex+1),
		ShortList:    feed.IsShortList(int(count)),
	}
	for _, thought := range page {
		payload.Thoughts = append(payload.Thoughts, renderThoughtPayload(thought))
	}

	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleListMonths(c *gin.Context) {
	creatorID, ok := h.requestCreator(c)
	if !ok {
		return
	}

	months, err := h.service.ListSortingDates(c.Request.Context(), creatorID)
	if err != nil {
		h.logger.Error("failed to list sorting dates", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"months": months})
}

func (h *httpHandler) handleRenderThought(c *gin.Context) {
	creatorID, ok := h.requestCreator(c)
	if !ok {
		return
	}
	thoughtID, ok := pathThoughtID(c)
	if !ok {
		return
	}

	thought, err := h.service.GetThought(c.Request.Context(), creatorID, thoughtID)
	if err != nil {
		if errors.Is(err, thoughts.ErrThoughtNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to load thought", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
		return
	}

	html, err := h.renderer.RenderHTML(thought.Content)
	if err != nil {
		h.logger.Error("failed to render thought", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render_failed"})
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	userID, err := h.sessions.ValidateToken(token)
	if err != nil {
		h.logger.Warn("session token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(creatorIDContextKey, userID)
	c.Next()
}

func (h *httpHandler) requestCreator(c *gin.Context) (thoughts.CreatorID, bool) {
	creatorID, err := thoughts.NewCreatorID(c.GetInt64(creatorIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, false
	}
	return creatorID, true
}

func pathThoughtID(c *gin.Context) (thoughts.ThoughtID, bool) {
	raw, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	thoughtID, err := thoughts.NewThoughtID(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return thoughtID, true
}
