package conversation

import (
	"github.com/gin-gonic/gin"

	"Copilot/controllers"
	"Copilot/pkg/repository"
)

// Register registers conversation routes (protected)
func Register(g *gin.RouterGroup, store repository.Store) {
	g.POST("/conversations", controllers.CreateConversation(store))
	g.GET("/conversations", controllers.ListConversations(store))
	g.GET("/conversations/:conversation_id/messages", controllers.GetMessages(store))
	g.DELETE("/conversations/:conversation_id", controllers.DeleteConversation(store))
}
