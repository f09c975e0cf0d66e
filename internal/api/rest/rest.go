package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes. auth guards the operations that
// act on behalf of an account of the devnet.
func SetupRoutes(router *gin.Engine, handler Handler, auth gin.HandlerFunc) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		// Address prediction (public)
		v1.GET("/factories/:kind/address", handler.PredictAddress)

		// Collections
		v1.POST("/collections", auth, handler.CreateCollection)
		v1.POST("/collections/:address/tokens", auth, handler.IssueTokens)
		v1.GET("/collections/:address/tokens/:token_id", handler.GetCollectionToken)
		v1.POST("/collections/:address/approvals", auth, handler.SetApproval)

		// Bridge operations
		v1.POST("/deposits", auth, handler.Deposit)
		v1.POST("/withdrawals", auth, handler.Withdraw)
		v1.GET("/bridged-tokens/:collection/:token_id", handler.GetBridgedToken)

		// Message journal
		v1.GET("/messages", handler.ListMessages)
		v1.POST("/messages/redeliver", auth, handler.RedeliverPending)
		v1.GET("/messages/:key", handler.GetMessage)
		v1.POST("/messages/:key/redeliver", auth, handler.RedeliverMessage)
	}
}
