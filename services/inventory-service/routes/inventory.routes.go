package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/NOVASWAY/Seth2.0-sub005/services/inventory-service/controllers"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

const (
	roleAdmin            = "ADMIN"
	roleInventoryManager = "INVENTORY_MANAGER"
	rolePharmacist       = "PHARMACIST"
	roleClinicalOfficer  = "CLINICAL_OFFICER"
)

func InventoryRoutes(rg *gin.RouterGroup, db security.Database, tokens *security.TokenManager, ic *controllers.InventoryController) {
	rg.Use(security.AuthMiddleware(db, tokens))

	viewers := security.RequireRole(db, roleAdmin, roleInventoryManager, rolePharmacist)
	managers := security.RequireRole(db, roleAdmin, roleInventoryManager)

	items := rg.Group("/items")
	{
		items.GET("", viewers, ic.ListItems)
		items.GET("/:id", viewers, ic.GetItem)
		items.GET("/:id/batches", viewers, ic.ListBatches)
		items.POST("", managers, ic.CreateItem)
		items.PUT("/:id", managers, ic.UpdateItem)
	}

	batches := rg.Group("/batches")
	{
		batches.POST("", managers, ic.CreateBatch)
		batches.POST("/:id/adjust", managers, ic.AdjustBatch)
		batches.POST("/:id/expire", managers, ic.ExpireBatch)
		batches.GET("/:id/reconcile", managers, ic.ReconcileBatch)
	}

	rg.POST("/dispense", security.RequireRole(db, roleAdmin, rolePharmacist), ic.Dispense)
	rg.GET("/movements", managers, ic.ListMovements)
	rg.GET("/stock-levels", viewers, ic.GetStockLevels)
	rg.GET("/stock-levels/export", viewers, ic.ExportStockLevels)
	rg.GET("/expiring", managers, ic.GetExpiringBatches)
	rg.GET("/available-stock", security.RequireRole(db, roleAdmin, roleClinicalOfficer, rolePharmacist), ic.GetAvailableStock)
}
