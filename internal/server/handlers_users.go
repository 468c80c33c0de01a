package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roster/internal/products"
	"github.com/MarcoPoloResearchLab/roster/internal/records"
	"github.com/MarcoPoloResearchLab/roster/internal/users"
)

const (
	operationCreated = "create"
	operationUpdated = "update"
	operationDeleted = "delete"
)

func (h *httpHandler) handleListUsers(c *gin.Context) {
	listed, err := h.users.List(c.Request.Context())
	if err != nil {
		h.logServiceError("list users failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Unable to load users. Please check your connection and try again.",
			"error":   serviceErrorCode(err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": listed})
}

func (h *httpHandler) handleGetUser(c *gin.Context) {
	id, ok := parseID(c, "Please provide a valid user ID (number)")
	if !ok {
		return
	}
	record, err := h.users.Get(c.Request.Context(), id)
	if errors.Is(err, users.ErrUserNotFound) {
		failure(c, http.StatusNotFound, fmt.Sprintf("User with ID %d not found. Please check the ID and try again.", id))
		return
	}
	if err != nil {
		h.logServiceError("get user failed", err, zap.Int("record_id", id))
		failure(c, http.StatusInternalServerError, "Unable to load user details. Please try again later.")
		return
	}
	c.JSON(http.StatusOK, recordResponse("", record))
}

func (h *httpHandler) handleCreateUser(c *gin.Context) {
	var record records.Record
	if err := c.ShouldBindJSON(&record); err != nil {
		failure(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	created, err := h.users.Create(c.Request.Context(), record)
	if err != nil {
		h.writeUserError(c, err, "Unable to create user. Please try again later.")
		return
	}
	h.publishUserChange(operationCreated, created.ID)
	c.JSON(http.StatusCreated, recordResponse(fmt.Sprintf("User created successfully with ID %d", created.ID), created))
}

func (h *httpHandler) handleUpdateUser(c *gin.Context) {
	id, ok := parseID(c, "Please provide a valid user ID for updating")
	if !ok {
		return
	}
	var record records.Record
	if err := c.ShouldBindJSON(&record); err != nil {
		failure(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	updated, err := h.users.Update(c.Request.Context(), id, record)
	if errors.Is(err, users.ErrUserNotFound) {
		failure(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.writeUserError(c, err, "Unable to update user. Please try again later.")
		return
	}
	h.publishUserChange(operationUpdated, id, updated.ID)
	c.JSON(http.StatusOK, recordResponse("User updated successfully", updated))
}

func (h *httpHandler) handleDeleteUser(c *gin.Context) {
	id, ok := parseID(c, "Please provide a valid user ID for deletion")
	if !ok {
		return
	}
	err := h.users.Delete(c.Request.Context(), id)
	if errors.Is(err, users.ErrUserNotFound) {
		failure(c, http.StatusNotFound, fmt.Sprintf("User with ID %d not found. The user may have been already deleted.", id))
		return
	}
	if err != nil {
		h.logServiceError("delete user failed", err, zap.Int("record_id", id))
		failure(c, http.StatusInternalServerError, "Unable to delete user. Please try again later.")
		return
	}
	h.publishUserChange(operationDeleted, id)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("User with ID %d has been deleted successfully", id)})
}

func (h *httpHandler) handleListProducts(c *gin.Context) {
	listed, err := h.products.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list products failed", zap.Error(err))
		failure(c, http.StatusInternalServerError, "Unable to load products. Please try again later.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "products": listed})
}

func (h *httpHandler) handleGetProduct(c *gin.Context) {
	id, ok := parseID(c, "Please provide a valid product ID (number)")
	if !ok {
		return
	}
	product, err := h.products.Get(c.Request.Context(), id)
	if errors.Is(err, products.ErrProductNotFound) {
		failure(c, http.StatusNotFound, fmt.Sprintf("Product with ID %d not found", id))
		return
	}
	if err != nil {
		h.logger.Error("get product failed", zap.Int("product_id", id), zap.Error(err))
		failure(c, http.StatusInternalServerError, "Unable to load product. Please try again later.")
		return
	}
	c.JSON(http.StatusOK, product)
}

// writeUserError maps create/update failures onto 400 detail bodies.
func (h *httpHandler) writeUserError(c *gin.Context, err error, fallback string) {
	var (
		validationErr *records.ValidationError
		duplicateErr  *users.DuplicateError
	)
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success":        false,
			"message":        "Please check your input and fix the validation errors",
			"errors":         validationErr.Messages(),
			"detailedErrors": validationErr.Fields,
		})
	case errors.As(err, &duplicateErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": duplicateMessage(duplicateErr),
			"error":   "Duplicate " + duplicateErr.Field,
			"field":   duplicateErr.Field,
			"value":   duplicateErr.Value,
		})
	default:
		h.logServiceError("user write failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": fallback,
			"error":   serviceErrorCode(err),
		})
	}
}

func duplicateMessage(err *users.DuplicateError) string {
	switch err.Field {
	case "id":
		return fmt.Sprintf("ID %s is already in use. Please choose a different ID.", err.Value)
	case "email":
		return fmt.Sprintf("Email %s is already registered. Please use a different email address.", err.Value)
	default:
		return fmt.Sprintf("%s already exists. Please use a different value.", err.Field)
	}
}

func (h *httpHandler) publishUserChange(operation string, ids ...int) {
	h.realtime.Publish(RealtimeMessage{
		Topic:     realtimeTopicUsers,
		EventType: RealtimeEventRecordChanged,
		Operation: operation,
		RecordIDs: collectRecordIDs(ids...),
		Timestamp: time.Now().UTC(),
	})
}

func (h *httpHandler) logServiceError(message string, err error, fields ...zap.Field) {
	base := []zap.Field{zap.String("code", serviceErrorCode(err)), zap.Error(err)}
	h.logger.Error(message, append(base, fields...)...)
}

func serviceErrorCode(err error) string {
	var serviceErr *users.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}

func parseID(c *gin.Context, message string) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		failure(c, http.StatusBadRequest, message)
		return 0, false
	}
	return id, true
}

// recordResponse flattens record next to the success envelope.
func recordResponse(message string, record records.Record) gin.H {
	body := gin.H{
		"success":   true,
		"id":        record.ID,
		"firstName": record.FirstName,
		"lastName":  record.LastName,
		"age":       record.Age,
		"email":     record.Email,
		"phone":     record.Phone,
		"birthDate": record.BirthDate,
	}
	if message != "" {
		body["message"] = message
	}
	return body
}
