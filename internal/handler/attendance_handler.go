package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ims-api/internal/models"
	"github.com/noah-isme/ims-api/internal/service"
	appErrors "github.com/noah-isme/ims-api/pkg/errors"
	"github.com/noah-isme/ims-api/pkg/response"
)

// AttendanceHandler exposes attendance sheet endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// List godoc
// @Summary List attendance sheets
// @Tags Attendance
// @Produce json
// @Param batchId query string false "Filter by batch"
// @Param courseId query string false "Filter by course"
// @Param from query string false "Date from (YYYY-MM-DD)"
// @Param to query string false "Date to (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance/sheets [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	var filter models.AttendanceSheetFilter
	filter.BatchID = c.Query("batchId")
	filter.CourseID = c.Query("courseId")
	if raw := c.Query("from"); raw != "" {
		if from, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateFrom = &from
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateTo = &to
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	sheets, pagination, err := h.attendance.ListSheets(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheets, pagination)
}

// Get godoc
// @Summary Get attendance sheet with entries and summary
// @Tags Attendance
// @Produce json
// @Param id path string true "Sheet ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/sheets/{id} [get]
func (h *AttendanceHandler) Get(c *gin.Context) {
	sheet, err := h.attendance.GetSheet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Create godoc
// @Summary Record attendance sheet
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.CreateSheetRequest true "Sheet payload"
// @Success 201 {object} response.Envelope
// @Router /attendance/sheets [post]
func (h *AttendanceHandler) Create(c *gin.Context) {
	var req service.CreateSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		req.TakenBy = &claims.UserID
	}
	sheet, err := h.attendance.CreateSheet(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sheet)
}

// ReplaceEntries godoc
// @Summary Replace a sheet's entries
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Sheet ID"
// @Param payload body service.ReplaceEntriesRequest true "Entries payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/sheets/{id}/entries [put]
func (h *AttendanceHandler) ReplaceEntries(c *gin.Context) {
	var req service.ReplaceEntriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	sheet, err := h.attendance.ReplaceEntries(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}
