package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ims-api/internal/models"
	"github.com/noah-isme/ims-api/internal/service"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
	"github.com/noah-isme/ims-api/pkg/response"
)

// MessagingHandler exposes the student-admin conversation endpoints.
type MessagingHandler struct {
	messaging *service.MessagingService
}

// NewMessagingHandler constructs MessagingHandler.
func NewMessagingHandler(messaging *service.MessagingService) *MessagingHandler {
	return &MessagingHandler{messaging: messaging}
}

// senderFor maps the caller's role to a conversation side.
func senderFor(c *gin.Context) models.SenderType {
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		return models.SenderStudent
	}
	return models.SenderAdmin
}

// ListConversations godoc
// @Summary List conversations (admin inbox)
// @Tags Messaging
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /conversations [get]
func (h *MessagingHandler) ListConversations(c *gin.Context) {
	convs, err := h.messaging.ListConversations(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, convs, nil)
}

// Thread godoc
// @Summary Get a student's conversation thread
// @Tags Messaging
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /conversations/{studentId} [get]
func (h *MessagingHandler) Thread(c *gin.Context) {
	conv, msgs, err := h.messaging.Thread(c.Request.Context(), c.Param("studentId"), senderFor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"conversation": conv, "messages": msgs}, nil)
}

// Send godoc
// @Summary Send a message in a student's conversation
// @Tags Messaging
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param payload body service.SendMessageRequest true "Message payload"
// @Success 201 {object} response.Envelope
// @Router /conversations/{studentId}/messages [post]
func (h *MessagingHandler) Send(c *gin.Context) {
	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.Sender = senderFor(c)
	if claims := claimsFromContext(c); claims != nil {
		req.SenderUserID = &claims.UserID
	}
	msg, err := h.messaging.Send(c.Request.Context(), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}
