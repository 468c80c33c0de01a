package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roster/internal/auth"
	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequestPayload struct {
	Name string `json:"name"`
}

type accountPayload struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func toAccountPayload(account auth.Account, withCreated bool) accountPayload {
	payload := accountPayload{ID: account.ID, Name: account.Name, Email: account.Email}
	if withCreated && !account.CreatedAt.IsZero() {
		created := account.CreatedAt.UTC()
		payload.CreatedAt = &created
	}
	return payload
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var registration auth.Registration
	if err := c.ShouldBindJSON(&registration); err != nil {
		failure(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	account, err := h.accounts.Register(c.Request.Context(), registration)
	var validationErr *records.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeValidationError(c, validationErr)
		return
	case errors.Is(err, auth.ErrEmailTaken):
		failure(c, http.StatusBadRequest, "User already exists with this email")
		return
	case err != nil:
		h.logger.Error("account registration failed", zap.Error(err))
		failure(c, http.StatusInternalServerError, "Server error during registration")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "User registered successfully",
		"user":    toAccountPayload(account, false),
	})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		failure(c, http.StatusBadRequest, "Email and password are required")
		return
	}
	account, err := h.accounts.Authenticate(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		failure(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		failure(c, http.StatusInternalServerError, "Server error during login")
		return
	}
	token, ok := h.issueSession(c, account)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login successful",
		"token":   token,
		"user":    toAccountPayload(account, false),
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), "", -1, "/", "", h.cookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if errors.Is(err, auth.ErrMissingSessionToken) {
		failure(c, http.StatusUnauthorized, "Refresh token required")
		return
	}
	if err != nil {
		h.logTokenFailure(err)
		failure(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	account, err := h.accounts.Lookup(c.Request.Context(), claims.UserID)
	if errors.Is(err, auth.ErrAccountNotFound) {
		failure(c, http.StatusUnauthorized, "User not found")
		return
	}
	if err != nil {
		h.logger.Error("refresh lookup failed", zap.Error(err))
		failure(c, http.StatusInternalServerError, "Server error")
		return
	}
	token, ok := h.issueSession(c, account)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
		"user":    toAccountPayload(account, false),
	})
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	account := c.MustGet(accountContextKey).(auth.Account)
	c.JSON(http.StatusOK, gin.H{"success": true, "user": toAccountPayload(account, true)})
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	account := c.MustGet(accountContextKey).(auth.Account)
	var request profileRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Name) == "" {
		failure(c, http.StatusBadRequest, "Name is required")
		return
	}
	renamed, err := h.accounts.Rename(c.Request.Context(), account.ID, request.Name)
	var validationErr *records.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeValidationError(c, validationErr)
		return
	case err != nil:
		h.logger.Error("profile update failed", zap.String("account_id", account.ID), zap.Error(err))
		failure(c, http.StatusInternalServerError, "Server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Profile updated successfully",
		"user":    toAccountPayload(renamed, false),
	})
}

// handleUserEvents streams user record changes as server-sent events.
func (h *httpHandler) handleUserEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, realtimeTopicUsers)
	defer cleanup()
	h.metrics.streamOpened()
	defer h.metrics.streamClosed()

	heartbeat := time.NewTicker(realtimeHeartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, gin.H{
				"collection": message.Topic,
				"operation":  message.Operation,
				"recordIds":  message.RecordIDs,
				"timestamp":  message.Timestamp.Format(time.RFC3339Nano),
				"source":     realtimeSourceBackend,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{
				"source":    realtimeSourceBackend,
				"timestamp": tick.UTC().Format(time.RFC3339Nano),
			})
			return true
		}
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		h.logTokenFailure(err)
		message := "Invalid token."
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
			message = "Access denied. No token provided."
		case errors.Is(err, auth.ErrExpiredSessionToken):
			message = "Token expired. Please login again."
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": message})
		return
	}
	account, err := h.accounts.Lookup(c.Request.Context(), claims.UserID)
	if errors.Is(err, auth.ErrAccountNotFound) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid token. User not found."})
		return
	}
	if err != nil {
		h.logger.Error("account lookup failed", zap.String("account_id", claims.UserID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
		return
	}
	c.Set(accountContextKey, account)
	c.Next()
}

func (h *httpHandler) issueSession(c *gin.Context, account auth.Account) (string, bool) {
	token, _, err := h.tokens.Issue(account)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		failure(c, http.StatusInternalServerError, "Unable to issue session token")
		return "", false
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), token, int(h.tokens.TTL().Seconds()), "/", "", h.cookieSecure, true)
	return token, true
}

func (h *httpHandler) logTokenFailure(err error) {
	if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
		h.logger.Info("token validation failed", zap.Error(err))
		return
	}
	h.logger.Warn("token validation failed", zap.Error(err))
}

func writeValidationError(c *gin.Context, validationErr *records.ValidationError) {
	messages := validationErr.Messages()
	message := "Validation error"
	if len(messages) > 0 {
		message = messages[0]
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"success":        false,
		"message":        message,
		"errors":         messages,
		"detailedErrors": validationErr.Fields,
	})
}
