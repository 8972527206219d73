package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/NOVASWAY/Seth2.0-sub005/services/billing-service/controllers"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

const (
	roleAdmin      = "ADMIN"
	roleCashier    = "CASHIER"
	rolePharmacist = "PHARMACIST"
)

func FinancialRoutes(rg *gin.RouterGroup, db security.Database, tokens *security.TokenManager, fc *controllers.FinancialController, mc *controllers.MpesaController) {
	// The gateway cannot send a bearer token, so the callback sits outside the auth group.
	rg.POST("/mpesa/callback", mc.Callback)

	protected := rg.Group("")
	protected.Use(security.AuthMiddleware(db, tokens))

	billing := security.RequireRole(db, rolePharmacist, roleCashier, roleAdmin)
	accounts := security.RequireRole(db, roleAdmin, roleCashier)

	invoices := protected.Group("/invoices")
	{
		invoices.POST("", billing, fc.CreateInvoice)
		invoices.GET("", billing, fc.ListInvoices)
		invoices.GET("/:id", billing, fc.GetInvoice)
		invoices.GET("/:id/payments", billing, fc.ListInvoicePayments)
	}

	protected.POST("/payments", billing, fc.RecordPayment)
	protected.GET("/receivables", accounts, fc.ListReceivables)
	protected.GET("/dashboard", billing, fc.GetDashboard)

	mpesaGroup := protected.Group("/mpesa")
	{
		mpesaGroup.POST("/stk-push", billing, mc.InitiateSTKPush)
		mpesaGroup.GET("/transactions/:checkoutRequestId", billing, mc.GetTransactionStatus)
	}
}
