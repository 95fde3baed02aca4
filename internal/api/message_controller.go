package api

import (
	"errors"
	"fmt"
	"net/http"

	"lagerverwaltung/server/internal/services"

	"github.com/gin-gonic/gin"
)

// MessageController serves the direct messages between users.
type MessageController struct {
	messages *services.MessageService
	users    *services.UserService
}

func NewMessageController(messages *services.MessageService, users *services.UserService) *MessageController {
	return &MessageController{messages: messages, users: users}
}

// Inbox lists conversation partners and all users to start a new one with.
// GET /messages
func (mc *MessageController) Inbox(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)
	partners, err := mc.messages.Partners(ctx, user.ID)
	if err != nil {
		serverError(c, err)
		return
	}
	users, err := mc.users.List(ctx)
	if err != nil {
		serverError(c, err)
		return
	}
	render(c, http.StatusOK, "messages.html", gin.H{
		"Title":    "Nachrichten",
		"Partners": partners,
		"Users":    users,
	})
}

// Conversation shows the messages with one user.
// GET /messages/:user_id
func (mc *MessageController) Conversation(c *gin.Context) {
	ctx := c.Request.Context()
	partnerID, ok := idParam(c, "user_id")
	if !ok {
		notFound(c)
		return
	}
	partner, err := mc.users.Get(ctx, partnerID)
	if errors.Is(err, services.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		serverError(c, err)
		return
	}
	messages, err := mc.messages.Conversation(ctx, currentUser(c).ID, partner.ID)
	if err != nil {
		serverError(c, err)
		return
	}
	render(c, http.StatusOK, "conversation.html", gin.H{
		"Title":     "Nachrichten mit " + partner.DisplayName(),
		"Partner":   partner,
		"Messages":  messages,
		"MaxLength": services.MaxMessageLength,
	})
}

// Send stores a message for the partner.
// POST /messages/:user_id
func (mc *MessageController) Send(c *gin.Context) {
	partnerID, ok := idParam(c, "user_id")
	if !ok {
		notFound(c)
		return
	}
	back := fmt.Sprintf("/messages/%d", partnerID)
	_, err := mc.messages.Send(c.Request.Context(), currentUser(c).ID, partnerID, c.PostForm("content"))
	switch {
	case errors.Is(err, services.ErrNotFound):
		notFound(c)
		return
	case errors.Is(err, services.ErrInvalidInput):
		redirectBack(c, back, fmt.Sprintf("Nachricht muss 1 bis %d Zeichen lang sein", services.MaxMessageLength))
		return
	case err != nil:
		serverError(c, err)
		return
	}
	c.Redirect(http.StatusFound, back)
}
