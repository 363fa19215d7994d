package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/leafnotes/internal/auth"
	"github.com/MarcoPoloResearchLab/leafnotes/internal/notes"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	principalContextKey      = "leafnotes_principal"
	defaultHeartbeatInterval = 25 * time.Second

	errorCodeInvalidRequest    = "invalid_request"
	errorCodeNotFound          = "not_found"
	errorCodeUnauthorized      = "unauthorized"
	errorCodeRemoteUnavailable = "remote_unavailable"
	errorCodeInternal          = "internal_error"

	actionCreated  = "created"
	actionUpdated  = "updated"
	actionDeleted  = "deleted"
	actionPurged   = "purged"
	actionRestored = "restored"
	actionLoaded   = "loaded"
	actionSynced   = "synced"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingWorkspaces       = errors.New("workspace registry dependency required")
	errCategoryIDMismatch      = errors.New("category id in body does not match path")
)

// SessionValidator establishes the principal of an incoming request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

type Dependencies struct {
	SessionValidator  SessionValidator
	Workspaces        *WorkspaceRegistry
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	HeartbeatInterval time.Duration
}

// NewHTTPHandler exposes the note engine of each principal over JSON and SSE.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Workspaces == nil {
		return nil, errMissingWorkspaces
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		sessions:          deps.SessionValidator,
		workspaces:        deps.Workspaces,
		realtime:          realtime,
		logger:            logger,
		heartbeatInterval: heartbeat,
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/notes/query", handler.handleQuery)
	protected.POST("/notes", handler.handleCreate)
	protected.PATCH("/notes/:id", handler.handleUpdate)
	protected.DELETE("/notes/:id", handler.handleDelete)
	protected.POST("/notes/:id/restore", handler.handleRestore)
	protected.POST("/notes/load", handler.handleLoad)
	protected.POST("/notes/sync", handler.handleSync)
	protected.GET("/notes/stream", handler.handleNotesStream)
	protected.GET("/categories", handler.handleListCategories)
	protected.PUT("/categories/:id", handler.handleUpsertCategory)
	protected.DELETE("/categories/:id", handler.handleDeleteCategory)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: func(string) bool {
			return true
		},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

type httpHandler struct {
	sessions          SessionValidator
	workspaces        *WorkspaceRegistry
	realtime          *RealtimeDispatcher
	logger            *zap.Logger
	heartbeatInterval time.Duration
}

type queryRequestPayload struct {
	Section string `json:"section"`
	notes.QueryOptions
}

type syncOutcomePayload struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

type mutationResponsePayload struct {
	Note       notes.Note         `json:"note"`
	Purged     bool               `json:"purged"`
	Sync       syncOutcomePayload `json:"sync"`
	CacheError string             `json:"cacheError,omitempty"`
}

type categoryResponsePayload struct {
	Category   notes.Category            `json:"category"`
	Cascaded   []mutationResponsePayload `json:"cascaded"`
	CacheError string                    `json:"cacheError,omitempty"`
}

type loadResponsePayload struct {
	Notes      []notes.Note `json:"notes"`
	CacheError string       `json:"cacheError,omitempty"`
}

type syncReportPayload struct {
	NoteID string             `json:"noteId"`
	Sync   syncOutcomePayload `json:"sync"`
}

type syncResponsePayload struct {
	Results []syncReportPayload `json:"results"`
	Pending []string            `json:"pending"`
}

func (h *httpHandler) handleQuery(c *gin.Context) {
	var request queryRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest})
		return
	}

	var result notes.QueryResult
	err := h.withCoordinator(c, func(coordinator *notes.Coordinator) error {
		result = coordinator.Query(strings.TrimSpace(request.Section), request.QueryOptions)
		return nil
	})
	if err != nil {
		h.writeError(c, "query", err)
		return
	}
	if result.Results == nil {
		result.Results = []notes.Note{}
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleCreate(c *gin.Context) {
	var input notes.NoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest})
		return
	}
	h.runMutation(c, "create", http.StatusCreated, func(ctx context.Context, coordinator *notes.Coordinator) (notes.MutationResult, error) {
		return coordinator.Create(ctx, input)
	})
}

func (h *httpHandler) handleUpdate(c *gin.Context) {
	var patch notes.NotePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest})
		return
	}
	noteID := c.Param("id")
	h.runMutation(c, "update", http.StatusOK, func(ctx context.Context, coordinator *notes.Coordinator) (notes.MutationResult, error) {
		return coordinator.Update(ctx, noteID, patch)
	})
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	noteID := c.Param("id")
	h.runMutation(c, "delete", http.StatusOK, func(ctx context.Context, coordinator *notes.Coordinator) (notes.MutationResult, error) {
		return coordinator.Delete(ctx, noteID)
	})
}

func (h *httpHandler) handleRestore(c *gin.Context) {
	noteID := c.Param("id")
	h.runMutation(c, "restore", http.StatusOK, func(ctx context.Context, coordinator *notes.Coordinator) (notes.MutationResult, error) {
		return coordinator.Restore(ctx, noteID)
	})
}

func (h *httpHandler) runMutation(c *gin.Context, operation string, status int, mutate func(context.Context, *notes.Coordinator) (notes.MutationResult, error)) {
	var result notes.MutationResult
	err := h.withCoordinator(c, func(coordinator *notes.Coordinator) error {
		var mutateErr error
		result, mutateErr = mutate(c.Request.Context(), coordinator)
		return mutateErr
	})
	if err != nil {
		h.writeError(c, operation, err)
		return
	}
	h.publish(c, mutationAction(operation, result), collectNoteIDs([]notes.MutationResult{result}))
	c.JSON(status, newMutationResponse(result))
}

func (h *httpHandler) handleLoad(c *gin.Context) {
	var result notes.LoadResult
	err := h.withCoordinator(c, func(coordinator *notes.Coordinator) error {
		var loadErr error
		result, loadErr = coordinator.LoadAll(c.Request.Context())
		return loadErr
	})
	if err != nil {
		h.writeError(c, "load", err)
		return
	}
	h.publish(c, actionLoaded, nil)

	response := loadResponsePayload{Notes: result.Notes, CacheError: errorText(result.CacheErr)}
	if response.Notes == nil {
		response.Notes = []notes.Note{}
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleSync(c *gin.Context) {
	var (
		reports []notes.SyncReport
		pending []string
	)
	err := h.withCoordinator(c, func(coordinator *notes.Coordinator) error {
		var syncErr error
		reports, syncErr = coordinator.SyncPending(c.Request.Context())
		pending = coordinator.Pending()
		return syncErr
	})
	if err != nil {
		h.writeError(c, "sync", err)
		return
	}

	response := syncResponsePayload{
		Results: make([]syncReportPayload, 0, len(reports)),
		Pending: pending,
	}
	if response.Pending == nil {
		response.Pending = []string{}
	}
	var synced []string
	for _, report := range reports {
		response.Results = append(response.Results, syncReportPayload{
			NoteID: report.NoteID,
			Sync:   newSyncOutcomePayload(report.Outcome),
		})
		if report.Outcome.Synced() {
			synced = append(synced, report.NoteID)
		}
	}
	if len(synced) > 0 {
		h.publish(c, actionSynced, synced)
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleListCategories(c *gin.Context) {
	var categories []notes.Category
	err := h.withCoordinator(c, func(coordinator *notes.Coordinator) error {
		categories = coordinator.Categories()
		return nil
	})
	if err != nil {
		h.writeError(c, "categories", err)
		return
	}
	if categories == nil {
		categories = []notes.Category{}
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *httpHandler) handleUpsertCategory(c *gin.Context) {
	var category notes.Category
	if err := c.ShouldBindJSON(&category); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest})
		return
	}
	pathID := strings.TrimSpace(c.Param("id"))
	if category.ID == "" {
		category.ID = pathID
	}
	if strings.TrimSpace(category.ID) != pathID {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest, "message": errCategoryIDMismatch.Error()})
		return
	}

	var result notes.CategoryResult
	err := h.withCoordinator(c, func(coordinator *notes.Coordinator) error {
		var upsertErr error
		result, upsertErr = coordinator.UpsertCategory(c.Request.Context(), category)
		return upsertErr
	})
	if err != nil {
		h.writeError(c, "upsert_category", err)
		return
	}
	c.JSON(http.StatusOK, newCategoryResponse(result))
}

func (h *httpHandler) handleDeleteCategory(c *gin.Context) {
	categoryID := c.Param("id")
	var result notes.CategoryResult
	err := h.withCoordinator(c, func(coordinator *notes.Coordinator) error {
		var deleteErr error
		result, deleteErr = coordinator.DeleteCategory(c.Request.Context(), categoryID)
		return deleteErr
	})
	if err != nil {
		h.writeError(c, "delete_category", err)
		return
	}
	if ids := collectNoteIDs(result.Cascaded); len(ids) > 0 {
		h.publish(c, actionUpdated, ids)
	}
	c.JSON(http.StatusOK, newCategoryResponse(result))
}

func (h *httpHandler) handleNotesStream(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errorCodeUnauthorized})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, principal)
	defer cleanup()

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend})
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, newRealtimeEventPayload(message))
			return true
		case <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend})
			return true
		}
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeUnauthorized})
		return
	}
	principal, err := claims.Principal()
	if err != nil {
		h.logger.Warn("session principal rejected", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeUnauthorized})
		return
	}
	c.Set(principalContextKey, principal)
	c.Next()
}

func (h *httpHandler) withCoordinator(c *gin.Context, fn func(*notes.Coordinator) error) error {
	principal, ok := principalFrom(c)
	if !ok {
		return notes.ErrAuthenticationRequired
	}
	return h.workspaces.With(c.Request.Context(), principal, fn)
}

func (h *httpHandler) publish(c *gin.Context, action string, noteIDs []string) {
	principal, ok := principalFrom(c)
	if !ok {
		return
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:    principal,
		EventType: RealtimeEventNoteChanged,
		Action:    action,
		NoteIDs:   noteIDs,
		Timestamp: time.Now().UTC(),
	})
}

func (h *httpHandler) writeError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, notes.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest, "message": err.Error()})
	case errors.Is(err, notes.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errorCodeNotFound})
	case errors.Is(err, notes.ErrAuthenticationRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": errorCodeUnauthorized})
	case errors.Is(err, notes.ErrRemoteTransient):
		h.logger.Warn("remote note operation failed", zap.String("operation", operation), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": errorCodeRemoteUnavailable})
	default:
		h.logger.Error("note operation failed", zap.String("operation", operation), zap.Error(err))
		response := gin.H{"error": errorCodeInternal}
		var serviceErr *notes.ServiceError
		if errors.As(err, &serviceErr) {
			response["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, response)
	}
}

func principalFrom(c *gin.Context) (notes.UserID, bool) {
	value, exists := c.Get(principalContextKey)
	if !exists {
		return "", false
	}
	principal, ok := value.(notes.UserID)
	return principal, ok && principal != ""
}

func mutationAction(operation string, result notes.MutationResult) string {
	switch operation {
	case "create":
		return actionCreated
	case "restore":
		return actionRestored
	case "delete":
		if result.Purged {
			return actionPurged
		}
		return actionDeleted
	default:
		return actionUpdated
	}
}

func newSyncOutcomePayload(outcome notes.SyncOutcome) syncOutcomePayload {
	return syncOutcomePayload{
		Status: string(outcome.Status),
		Reason: outcome.Reason,
		Error:  errorText(outcome.Err),
	}
}

func newMutationResponse(result notes.MutationResult) mutationResponsePayload {
	return mutationResponsePayload{
		Note:       result.Note,
		Purged:     result.Purged,
		Sync:       newSyncOutcomePayload(result.Sync),
		CacheError: errorText(result.CacheErr),
	}
}

func newCategoryResponse(result notes.CategoryResult) categoryResponsePayload {
	cascaded := make([]mutationResponsePayload, 0, len(result.Cascaded))
	for _, mutation := range result.Cascaded {
		cascaded = append(cascaded, newMutationResponse(mutation))
	}
	return categoryResponsePayload{
		Category:   result.Category,
		Cascaded:   cascaded,
		CacheError: errorText(result.CacheErr),
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
