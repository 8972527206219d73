package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/NOVASWAY/Seth2.0-sub005/services/auth-service/controllers"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

func AuthRoutes(rg *gin.RouterGroup, db security.Database, tokens *security.TokenManager, ac *controllers.AuthController) {
	rg.POST("/login", ac.Login)
	rg.POST("/refresh", ac.Refresh)
	rg.POST("/logout", ac.Logout)

	protected := rg.Group("")
	protected.Use(security.AuthMiddleware(db, tokens))
	{
		protected.GET("/profile", ac.GetProfile)
		protected.POST("/change-password", ac.ChangePassword)
	}
}
