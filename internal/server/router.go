package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tandemhq/tandem/backend/internal/auth"
	"github.com/tandemhq/tandem/backend/internal/collab"
)

const identityContextKey = "tandem_identity"

const heartbeatInterval = 15 * time.Second

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingTokenIssuer    = errors.New("token issuer dependency required")
	errMissingDirectory      = errors.New("identity directory dependency required")
	errMissingManager        = errors.New("session manager dependency required")
	errMissingDispatcher     = errors.New("event dispatcher dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// SessionTokenValidator validates a bearer token and returns its claims.
type SessionTokenValidator interface {
	ValidateToken(token string) (auth.SessionClaims, error)
}

// SessionTokenIssuer mints a session token for a resolved identity.
type SessionTokenIssuer interface {
	IssueToken(email, firstName, lastName, avatarURL string) (string, int64, error)
}

// Dependencies wires the gateway to the collaborative core.
type Dependencies struct {
	Tokens    SessionTokenValidator
	Issuer    SessionTokenIssuer
	Directory collab.Directory
	Manager   *collab.Manager
	Realtime  *NoteEventDispatcher
	Logger    *zap.Logger
}

// NewHTTPHandler builds the gin handler exposing the session manager to
// clients.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenValidator
	}
	if deps.Issuer == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.Directory == nil {
		return nil, errMissingDirectory
	}
	if deps.Manager == nil {
		return nil, errMissingManager
	}
	if deps.Realtime == nil {
		return nil, errMissingDispatcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:    deps.Tokens,
		issuer:    deps.Issuer,
		directory: deps.Directory,
		manager:   deps.Manager,
		realtime:  deps.Realtime,
		logger:    logger,
	}

	router.POST("/auth/session", handler.handleIssueSession)
	router.GET("/notes/:id/events", handler.handleEventStream)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/notes/:id/join", handler.handleJoin)
	protected.POST("/notes/:id/leave", handler.handleLeave)
	protected.POST("/notes/:id/edits", handler.handleEdit)
	protected.POST("/notes/:id/cursor", handler.handleCursor)
	protected.POST("/notes/:id/typing", handler.handleTyping)
	protected.GET("/notes/:id/session", handler.handleGetSession)
	protected.GET("/notes/:id/collaborators", handler.handleGetCollaborators)
	protected.POST("/session/disconnect", handler.handleDisconnect)

	return router, nil
}

type httpHandler struct {
	tokens    SessionTokenValidator
	issuer    SessionTokenIssuer
	directory collab.Directory
	manager   *collab.Manager
	realtime  *NoteEventDispatcher
	logger    *zap.Logger
}

type sessionTokenRequest struct {
	Email string `json:"email"`
}

// handleIssueSession mints a session token for a known directory identity.
func (h *httpHandler) handleIssueSession(c *gin.Context) {
	var request sessionTokenRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	profile, err := h.directory.FindByEmail(c.Request.Context(), request.Email)
	if err != nil {
		h.logger.Warn("session token refused", zap.String("email", request.Email), zap.Error(err))
		c.JSON(http.StatusForbidden, gin.H{"error": "identity_not_found"})
		return
	}

	token, expiresIn, err := h.issuer.IssueToken(profile.Email, profile.FirstName, profile.LastName, profile.AvatarURL)
	if err != nil {
		h.logger.Error("session token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": expiresIn})
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
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(identityContextKey, claims.Email)
	c.Next()
}

func (h *httpHandler) identity(c *gin.Context) string {
	return c.GetString(identityContextKey)
}

type collaboratorPayload struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	Color        string    `json:"color"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

type cursorPayload struct {
	UserID         string `json:"user_id"`
	Position       int    `json:"position"`
	SelectionStart *int   `json:"selection_start,omitempty"`
	SelectionEnd   *int   `json:"selection_end,omitempty"`
	Color          string `json:"color"`
	DisplayName    string `json:"display_name"`
}

type sessionPayload struct {
	NoteID        string                `json:"note_id"`
	Title         string                `json:"title"`
	Content       string                `json:"content"`
	Version       int64                 `json:"version"`
	Collaborators []collaboratorPayload `json:"collaborators"`
	Cursors       []cursorPayload       `json:"cursors"`
}

type presenceEventPayload struct {
	Type                   string    `json:"type"`
	NoteID                 string    `json:"note_id"`
	UserID                 string    `json:"user_id"`
	DisplayName            string    `json:"display_name"`
	Color                  string    `json:"color,omitempty"`
	RemainingCollaborators int       `json:"remaining_collaborators"`
	Timestamp              time.Time `json:"timestamp"`
}

type editRequestPayload struct {
	Kind        string  `json:"kind"`
	BaseVersion int64   `json:"base_version"`
	Title       *string `json:"title"`
	Content     *string `json:"content"`
}

type editOutcomePayload struct {
	NoteID   string  `json:"note_id"`
	UserID   string  `json:"user_id"`
	Kind     string  `json:"kind"`
	Applied  bool    `json:"applied"`
	Conflict bool    `json:"conflict"`
	Version  int64   `json:"version"`
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
}

type cursorRequestPayload struct {
	Position       int  `json:"position"`
	SelectionStart *int `json:"selection_start"`
	SelectionEnd   *int `json:"selection_end"`
}

type typingRequestPayload struct {
	IsTyping bool `json:"is_typing"`
}

func sessionToPayload(snapshot *collab.SessionSnapshot) sessionPayload {
	payload := sessionPayload{
		NoteID:        snapshot.NoteID,
		Title:         snapshot.Title,
		Content:       snapshot.Content,
		Version:       snapshot.Version,
		Collaborators: make([]collaboratorPayload, 0, len(snapshot.Collaborators)),
		Cursors:       make([]cursorPayload, 0, len(snapshot.Cursors)),
	}
	for _, collaborator := range snapshot.Collaborators {
		payload.Collaborators = append(payload.Collaborators, collaboratorToPayload(collaborator))
	}
	for _, cursor := range snapshot.Cursors {
		payload.Cursors = append(payload.Cursors, cursorToPayload(cursor))
	}
	return payload
}

func collaboratorToPayload(collaborator collab.Collaborator) collaboratorPayload {
	return collaboratorPayload{
		UserID:       collaborator.UserID,
		Email:        collaborator.Email,
		DisplayName:  collaborator.DisplayName,
		AvatarURL:    collaborator.AvatarURL,
		Color:        collaborator.Color,
		JoinedAt:     collaborator.JoinedAt,
		LastActiveAt: collaborator.LastActiveAt,
	}
}

func cursorToPayload(cursor collab.CursorPosition) cursorPayload {
	return cursorPayload{
		UserID:         cursor.UserID,
		Position:       cursor.Position,
		SelectionStart: cursor.SelectionStart,
		SelectionEnd:   cursor.SelectionEnd,
		Color:          cursor.Color,
		DisplayName:    cursor.DisplayName,
	}
}

func presenceToPayload(event collab.PresenceEvent) presenceEventPayload {
	return presenceEventPayload{
		Type:                   string(event.Type),
		NoteID:                 event.NoteID,
		UserID:                 event.UserID,
		DisplayName:            event.DisplayName,
		Color:                  event.Color,
		RemainingCollaborators: event.RemainingCollaborators,
		Timestamp:              event.Timestamp,
	}
}

func (h *httpHandler) handleJoin(c *gin.Context) {
	noteID := c.Param("id")
	identity := h.identity(c)

	snapshot, err := h.manager.JoinNote(c.Request.Context(), noteID, identity)
	if err != nil {
		h.respondManagerError(c, err)
		return
	}

	for _, collaborator := range snapshot.Collaborators {
		if collaborator.Email != identity {
			continue
		}
		h.realtime.Publish(NoteEvent{
			NoteID:    noteID,
			EventType: RealtimeEventPresence,
			Actor:     identity,
			Payload: presenceEventPayload{
				Type:                   string(collab.PresenceUserJoined),
				NoteID:                 noteID,
				UserID:                 collaborator.UserID,
				DisplayName:            collaborator.DisplayName,
				Color:                  collaborator.Color,
				RemainingCollaborators: len(snapshot.Collaborators),
				Timestamp:              collaborator.LastActiveAt,
			},
			Timestamp: collaborator.LastActiveAt,
		})
		break
	}

	c.JSON(http.StatusOK, sessionToPayload(snapshot))
}

func (h *httpHandler) handleLeave(c *gin.Context) {
	noteID := c.Param("id")
	identity := h.identity(c)

	event, err := h.manager.LeaveNote(c.Request.Context(), noteID, identity)
	if err != nil {
		h.respondManagerError(c, err)
		return
	}
	if event == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}

	h.realtime.Publish(NoteEvent{
		NoteID:    noteID,
		EventType: RealtimeEventPresence,
		Actor:     identity,
		Payload:   presenceToPayload(*event),
		Timestamp: event.Timestamp,
	})
	c.JSON(http.StatusOK, presenceToPayload(*event))
}

func (h *httpHandler) handleEdit(c *gin.Context) {
	noteID := c.Param("id")
	identity := h.identity(c)

	var request editRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	kind, err := parseEditKind(request.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_edit_kind"})
		return
	}

	outcome, err := h.manager.ProcessEdit(c.Request.Context(), collab.EditRequest{
		NoteID:      noteID,
		Kind:        kind,
		BaseVersion: request.BaseVersion,
		Title:       request.Title,
		Content:     request.Content,
	}, identity)
	if err != nil {
		h.respondManagerError(c, err)
		return
	}
	if outcome == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}

	payload := editOutcomePayload{
		NoteID:   outcome.NoteID,
		UserID:   outcome.UserID,
		Kind:     string(outcome.Kind),
		Applied:  outcome.Applied,
		Conflict: outcome.Conflict,
		Version:  outcome.Version,
		Title:    outcome.Title,
		Content:  outcome.Content,
	}
	if outcome.Applied {
		h.realtime.Publish(NoteEvent{
			NoteID:    noteID,
			EventType: RealtimeEventNoteEdited,
			Actor:     identity,
			Payload:   payload,
			Timestamp: time.Now().UTC(),
		})
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleCursor(c *gin.Context) {
	noteID := c.Param("id")
	identity := h.identity(c)

	var request cursorRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	broadcast, err := h.manager.UpdateCursor(c.Request.Context(), collab.CursorRequest{
		NoteID:         noteID,
		Position:       request.Position,
		SelectionStart: request.SelectionStart,
		SelectionEnd:   request.SelectionEnd,
	}, identity)
	if err != nil {
		h.respondManagerError(c, err)
		return
	}
	if broadcast == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}

	payload := cursorToPayload(broadcast.Cursor)
	h.realtime.Publish(NoteEvent{
		NoteID:    noteID,
		EventType: RealtimeEventCursor,
		Actor:     identity,
		Payload:   payload,
		Timestamp: broadcast.Cursor.UpdatedAt,
	})
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleTyping(c *gin.Context) {
	noteID := c.Param("id")
	identity := h.identity(c)

	var request typingRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	event, err := h.manager.CreateTypingEvent(c.Request.Context(), noteID, identity, request.IsTyping)
	if err != nil {
		h.respondManagerError(c, err)
		return
	}
	if event == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}

	h.realtime.Publish(NoteEvent{
		NoteID:    noteID,
		EventType: RealtimeEventPresence,
		Actor:     identity,
		Payload:   presenceToPayload(*event),
		Timestamp: event.Timestamp,
	})
	c.JSON(http.StatusOK, presenceToPayload(*event))
}

func (h *httpHandler) handleGetSession(c *gin.Context) {
	snapshot := h.manager.GetSession(c.Param("id"))
	if snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
		return
	}
	c.JSON(http.StatusOK, sessionToPayload(snapshot))
}

func (h *httpHandler) handleGetCollaborators(c *gin.Context) {
	collaborators := h.manager.GetCollaborators(c.Param("id"))
	payload := make([]collaboratorPayload, 0, len(collaborators))
	for _, collaborator := range collaborators {
		payload = append(payload, collaboratorToPayload(collaborator))
	}
	c.JSON(http.StatusOK, gin.H{"collaborators": payload, "count": len(payload)})
}

func (h *httpHandler) handleDisconnect(c *gin.Context) {
	identity := h.identity(c)

	events, err := h.manager.HandleDisconnect(c.Request.Context(), identity)
	if err != nil {
		h.respondManagerError(c, err)
		return
	}
	for _, event := range events {
		h.realtime.Publish(NoteEvent{
			NoteID:    event.NoteID,
			EventType: RealtimeEventPresence,
			Actor:     identity,
			Payload:   presenceToPayload(event),
			Timestamp: event.Timestamp,
		})
	}
	c.JSON(http.StatusOK, gin.H{"removed_from": len(events)})
}

// handleEventStream serves the per-note SSE feed. EventSource clients cannot
// set headers, so the token is also accepted as a query parameter.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	token := c.Query("access_token")
	if token == "" {
		header := c.GetHeader("Authorization")
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming_unsupported"})
		return
	}

	noteID := c.Param("id")
	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), noteID, claims.Email)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := c.Writer.WriteString("event: " + realtimeEventHeartbeat + "\ndata: {}\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-stream:
			if !open {
				return
			}
			data, err := json.Marshal(event.Payload)
			if err != nil {
				h.logger.Error("failed to encode note event", zap.Error(err))
				continue
			}
			if _, err := c.Writer.WriteString("event: " + event.EventType + "\ndata: " + string(data) + "\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *httpHandler) respondManagerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, collab.ErrIdentityNotFound):
		c.JSON(http.StatusForbidden, gin.H{"error": "identity_not_found"})
	case errors.Is(err, collab.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "access_denied"})
	case errors.Is(err, collab.ErrNoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found"})
	default:
		h.logger.Error("session manager request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func parseEditKind(value string) (collab.EditKind, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(collab.EditKindTitle):
		return collab.EditKindTitle, nil
	case string(collab.EditKindContent):
		return collab.EditKindContent, nil
	case string(collab.EditKindFull):
		return collab.EditKindFull, nil
	default:
		return "", errors.New("unknown edit kind")
	}
}
