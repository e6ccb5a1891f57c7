package routes

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"dispatchdesk/internal/handlers"
	"dispatchdesk/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	tokens middleware.TokenParser,
	verificationHandler *handlers.VerificationHandler,
	userHandler *handlers.UserHandler,
	healthHandler *handlers.HealthHandler,
	integrationsHandler *handlers.IntegrationsHandler, // nil in polling mode
) *gin.Engine {

	// ---- public
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := r.Group("/auth/phone")
	{
		auth.POST("/request", verificationHandler.RequestVerification)
		auth.POST("/verify", verificationHandler.VerifyCode)
		auth.GET("/attempts/:id", verificationHandler.AttemptStatus)
	}

	if integrationsHandler != nil {
		r.POST("/integrations/telegram/webhook", integrationsHandler.Webhook)
	}

	// ---- protected
	protected := r.Group("/", middleware.AuthMiddleware(tokens))
	{
		protected.GET("/me", userHandler.Me)
	}

	return r
}
