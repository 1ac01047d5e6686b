package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"Copilot/middleware"
	"Copilot/models"
	"Copilot/pkg/apperr"
	"Copilot/pkg/prompts"
	"Copilot/pkg/repository"
)

type createConversationBody struct {
	Title           string  `json:"title" binding:"max=100"`
	BusinessContext *string `json:"business_context" binding:"omitempty,max=32"`
}

type listQuery struct {
	Limit  int `form:"limit,default=20" binding:"min=1,max=100"`
	Offset int `form:"offset,default=0" binding:"min=0"`
}

type messageView struct {
	ID        uint      `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func currentUser(c *gin.Context) (uint, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "unauthenticated"})
	}
	return uid, ok
}

func conversationID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("conversation_id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, apperr.Validation("conversation_id must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}

func CreateConversation(store repository.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}

		var body createConversationBody
		// an empty body creates an untitled general conversation
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				respondError(c, bindError(err))
				return
			}
		}

		conv := models.Conversation{UserID: uid, Title: strings.TrimSpace(body.Title)}
		if body.BusinessContext != nil && strings.TrimSpace(*body.BusinessContext) != "" {
			d := prompts.Domain(strings.ToLower(strings.TrimSpace(*body.BusinessContext)))
			if !d.Valid() {
				respondError(c, apperr.Validation("business_context must be one of: %s", domainList()))
				return
			}
			s := string(d)
			conv.BusinessContext = &s
		}

		if err := store.CreateConversation(c.Request.Context(), &conv); err != nil {
			respondError(c, apperr.Internal(err, "failed to create conversation"))
			return
		}
		c.JSON(http.StatusCreated, models.ConversationSummary{
			ID:              conv.ID,
			Title:           conv.Title,
			BusinessContext: conv.BusinessContext,
			CreatedAt:       conv.CreatedAt,
			UserID:          conv.UserID,
		})
	}
}

func ListConversations(store repository.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		var q listQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, bindError(err))
			return
		}

		convs, total, err := store.ListConversations(c.Request.Context(), uid, q.Limit, q.Offset)
		if err != nil {
			respondError(c, apperr.Internal(err, "failed to list conversations"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversations": convs, "total": total})
	}
}

func GetMessages(store repository.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		cid, ok := conversationID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		conv, err := store.GetConversationByID(ctx, cid, uid)
		if err != nil {
			respondError(c, apperr.Internal(err, "failed to load conversation"))
			return
		}
		if conv == nil {
			respondError(c, apperr.NotFound("conversation not found"))
			return
		}

		msgs, err := store.GetAllMessages(ctx, cid)
		if err != nil {
			respondError(c, apperr.Internal(err, "failed to load messages"))
			return
		}
		out := make([]messageView, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, messageView{ID: m.ID, Role: m.Role, Content: m.Content, Timestamp: m.CreatedAt})
		}
		c.JSON(http.StatusOK, gin.H{"conversation_id": cid, "messages": out})
	}
}

func DeleteConversation(store repository.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		cid, ok := conversationID(c)
		if !ok {
			return
		}

		deleted, err := store.DeleteConversation(c.Request.Context(), cid, uid)
		if err != nil {
			respondError(c, apperr.Internal(err, "failed to delete conversation"))
			return
		}
		if !deleted {
			respondError(c, apperr.NotFound("conversation not found"))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func domainList() string {
	names := make([]string, len(prompts.Domains))
	for i, d := range prompts.Domains {
		names[i] = string(d)
	}
	return strings.Join(names, ", ")
}
