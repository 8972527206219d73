package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/NOVASWAY/Seth2.0-sub005/services/clinical-service/controllers"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

const (
	roleAdmin           = "ADMIN"
	roleClinicalOfficer = "CLINICAL_OFFICER"
	rolePharmacist      = "PHARMACIST"
	roleLabTechnician   = "LAB_TECHNICIAN"
	roleNurse           = "NURSE"
)

func PrescriptionRoutes(rg *gin.RouterGroup, db security.Database, tokens *security.TokenManager, pc *controllers.PrescriptionController) {
	rg.Use(security.AuthMiddleware(db, tokens))

	viewers := security.RequireRole(db, roleAdmin, roleClinicalOfficer, rolePharmacist, roleNurse)
	prescribers := security.RequireRole(db, roleAdmin, roleClinicalOfficer)
	dispensers := security.RequireRole(db, roleAdmin, rolePharmacist)

	rg.GET("/patient/:patientId", viewers, pc.ListByPatient)
	rg.GET("/visit/:visitId", viewers, pc.ListByVisit)
	rg.GET("/:id", viewers, pc.GetByID)
	rg.POST("", prescribers, pc.Create)
	rg.PATCH("/:id/status", dispensers, pc.UpdateStatus)
	rg.PATCH("/items/:id/dispense", dispensers, pc.DispenseItem)
}

func LabRequestRoutes(rg *gin.RouterGroup, db security.Database, tokens *security.TokenManager, lc *controllers.LabController) {
	rg.Use(security.AuthMiddleware(db, tokens))

	viewers := security.RequireRole(db, roleAdmin, roleClinicalOfficer, roleLabTechnician, roleNurse)
	requesters := security.RequireRole(db, roleAdmin, roleClinicalOfficer)
	technicians := security.RequireRole(db, roleAdmin, roleLabTechnician)

	rg.GET("", viewers, lc.ListRequests)
	rg.GET("/pending", technicians, lc.ListPending)
	rg.GET("/completed", viewers, lc.ListCompleted)
	rg.GET("/patient/:patientId", viewers, lc.ListByPatient)
	rg.GET("/visit/:visitId", viewers, lc.ListByVisit)
	rg.GET("/:id", viewers, lc.GetRequest)
	rg.GET("/:id/items", viewers, lc.ListItems)
	rg.POST("", requesters, lc.CreateRequest)
	rg.PATCH("/:id/status", technicians, lc.UpdateStatus)
	rg.PATCH("/items/:itemId", technicians, lc.UpdateItem)
}

func LabTestRoutes(rg *gin.RouterGroup, db security.Database, tokens *security.TokenManager, lc *controllers.LabController) {
	rg.Use(security.AuthMiddleware(db, tokens))

	admins := security.RequireRole(db, roleAdmin)

	rg.GET("", lc.ListTests)
	rg.GET("/search", lc.SearchTests)
	rg.GET("/categories", lc.Categories)
	rg.GET("/:id", lc.GetTest)
	rg.POST("", admins, lc.CreateTest)
	rg.PUT("/:id", admins, lc.UpdateTest)
	rg.DELETE("/:id", admins, lc.DeactivateTest)
}
