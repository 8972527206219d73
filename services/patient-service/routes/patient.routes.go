package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/NOVASWAY/Seth2.0-sub005/services/patient-service/controllers"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

const (
	roleAdmin           = "ADMIN"
	roleReceptionist    = "RECEPTIONIST"
	roleNurse           = "NURSE"
	roleClinicalOfficer = "CLINICAL_OFFICER"
	rolePharmacist      = "PHARMACIST"
)

func PatientRoutes(rg *gin.RouterGroup, db security.Database, tokens *security.TokenManager, pc *controllers.PatientController) {
	rg.Use(security.AuthMiddleware(db, tokens))

	viewers := security.RequireRole(db, roleAdmin, roleReceptionist, roleNurse, roleClinicalOfficer)
	registrars := security.RequireRole(db, roleAdmin, roleReceptionist)

	rg.GET("", viewers, pc.List)
	rg.GET("/search", viewers, pc.Search)
	rg.GET("/op/:opNumber", viewers, pc.GetByOpNumber)
	rg.GET("/:id", viewers, pc.Get)
	rg.GET("/:id/visits", viewers, pc.Visits)
	rg.POST("", registrars, pc.Create)
	rg.POST("/import", registrars, pc.Import)
	rg.PUT("/:id", registrars, pc.Update)
}

func VisitRoutes(rg *gin.RouterGroup, db security.Database, tokens *security.TokenManager, vc *controllers.VisitController) {
	rg.Use(security.AuthMiddleware(db, tokens))

	front := security.RequireRole(db, roleAdmin, roleReceptionist, roleNurse, roleClinicalOfficer)
	registrars := security.RequireRole(db, roleAdmin, roleReceptionist)
	clinical := security.RequireRole(db, roleAdmin, roleNurse, roleClinicalOfficer, rolePharmacist)

	rg.GET("", front, vc.List)
	rg.GET("/queue", front, vc.Queue)
	rg.GET("/stats", front, vc.Stats)
	rg.GET("/:id", clinical, vc.Get)
	rg.POST("", registrars, vc.Create)
	rg.PATCH("/:id/status", clinical, vc.UpdateStatus)
}
