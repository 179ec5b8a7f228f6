package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/saludpro/backoffice-api/internal/middleware"
	"github.com/saludpro/backoffice-api/internal/model"
	"github.com/saludpro/backoffice-api/internal/service/patient"
	"github.com/saludpro/backoffice-api/pkg/httputil"
)

type Handler struct {
	service *patient.Service
}

func NewHandler(service *patient.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authMw *middleware.AuthMiddleware) {
	patients := r.Group("/patients", authMw.RequireRoles(model.RoleSuperAdmin, model.RoleProfessional))
	{
		patients.POST("", h.CreatePatient)
		patients.GET("", h.ListPatients)
		patients.GET("/stats", h.GetStats)
		patients.GET("/:id", h.GetPatient)
		patients.PUT("/:id", h.UpdatePatient)
		patients.DELETE("/:id", authMw.RequirePermission(model.PermissionPatientsDelete), h.DeletePatient)
		patients.PATCH("/:id/toggle-active", h.ToggleActive)
		patients.POST("/:id/approve", authMw.RequirePermission(model.PermissionPatientsApprove), h.ApprovePatient)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	professionalID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return
	}

	var req model.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithValidationError(c, err)
		return
	}

	agg, err := h.service.CreatePatient(c.Request.Context(), &req, professionalID, req.IsFromPublicSite)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, agg)
}

func (h *Handler) ListPatients(c *gin.Context) {
	professionalID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return
	}

	var query model.ListPatientsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httputil.RespondWithValidationError(c, err)
		return
	}

	list, err := h.service.GetPatients(c.Request.Context(), professionalID, &query)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, list)
}

func (h *Handler) GetStats(c *gin.Context) {
	professionalID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return
	}

	stats, err := h.service.GetPatientStats(c.Request.Context(), professionalID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, stats)
}

func (h *Handler) GetPatient(c *gin.Context) {
	professionalID, id, ok := h.parseIDs(c)
	if !ok {
		return
	}

	agg, err := h.service.GetPatientByID(c.Request.Context(), id, professionalID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, agg)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	professionalID, id, ok := h.parseIDs(c)
	if !ok {
		return
	}

	var req model.UpdatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithValidationError(c, err)
		return
	}

	agg, err := h.service.UpdatePatient(c.Request.Context(), id, &req, professionalID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, agg)
}

func (h *Handler) DeletePatient(c *gin.Context) {
	professionalID, id, ok := h.parseIDs(c)
	if !ok {
		return
	}

	if err := h.service.DeletePatient(c.Request.Context(), id, professionalID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"message": "patient deleted"})
}

func (h *Handler) ToggleActive(c *gin.Context) {
	professionalID, id, ok := h.parseIDs(c)
	if !ok {
		return
	}

	isActive, err := h.service.ToggleActiveStatus(c.Request.Context(), id, professionalID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"is_active": isActive})
}

func (h *Handler) ApprovePatient(c *gin.Context) {
	professionalID, id, ok := h.parseIDs(c)
	if !ok {
		return
	}

	agg, err := h.service.ApprovePatient(c.Request.Context(), id, professionalID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, agg)
}

func (h *Handler) parseIDs(c *gin.Context) (professionalID, patientID uuid.UUID, ok bool) {
	professionalID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return uuid.Nil, uuid.Nil, false
	}

	patientID, err = uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patient ID"})
		return uuid.Nil, uuid.Nil, false
	}

	return professionalID, patientID, true
}
