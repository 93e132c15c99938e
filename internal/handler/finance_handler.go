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

// FinanceHandler exposes receipt, balance and expense endpoints.
type FinanceHandler struct {
	finance *service.FinanceService
}

// NewFinanceHandler constructs FinanceHandler.
func NewFinanceHandler(finance *service.FinanceService) *FinanceHandler {
	return &FinanceHandler{finance: finance}
}

// ListReceipts godoc
// @Summary List fee receipts
// @Tags Finance
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param courseId query string false "Filter by course"
// @Param mode query string false "Filter by payment mode"
// @Param from query string false "Date from (YYYY-MM-DD)"
// @Param to query string false "Date to (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /fees/receipts [get]
func (h *FinanceHandler) ListReceipts(c *gin.Context) {
	var filter models.FeesReceiptFilter
	filter.StudentID = c.Query("studentId")
	filter.CourseID = c.Query("courseId")
	filter.Mode = models.PaymentMode(c.Query("mode"))
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
	receipts, pagination, err := h.finance.ListReceipts(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, receipts, pagination)
}

// ExportReceipts godoc
// @Summary Export fee receipts as CSV or PDF
// @Tags Finance
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "Export format (csv or pdf)" default(csv)
// @Param studentId query string false "Filter by student"
// @Param courseId query string false "Filter by course"
// @Param mode query string false "Filter by payment mode"
// @Param from query string false "Date from (YYYY-MM-DD)"
// @Param to query string false "Date to (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /fees/receipts/export [get]
func (h *FinanceHandler) ExportReceipts(c *gin.Context) {
	var filter models.FeesReceiptFilter
	filter.StudentID = c.Query("studentId")
	filter.CourseID = c.Query("courseId")
	filter.Mode = models.PaymentMode(c.Query("mode"))
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
	data, filename, contentType, err := h.finance.ExportReceipts(c.Request.Context(), filter, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}

// ReceiptDownloadLink godoc
// @Summary Get a signed download link for the receipt PDF
// @Tags Finance
// @Produce json
// @Param id path string true "Receipt ID"
// @Success 200 {object} response.Envelope
// @Router /fees/receipts/{id}/download [get]
func (h *FinanceHandler) ReceiptDownloadLink(c *gin.Context) {
	link, err := h.finance.ReceiptDownloadLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// GetReceipt godoc
// @Summary Get fee receipt
// @Tags Finance
// @Produce json
// @Param id path string true "Receipt ID"
// @Success 200 {object} response.Envelope
// @Router /fees/receipts/{id} [get]
func (h *FinanceHandler) GetReceipt(c *gin.Context) {
	receipt, err := h.finance.GetReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, receipt, nil)
}

// CreateReceipt godoc
// @Summary Post fee payment
// @Tags Finance
// @Accept json
// @Produce json
// @Param payload body service.CreateReceiptRequest true "Receipt payload"
// @Success 201 {object} response.Envelope
// @Router /fees/receipts [post]
func (h *FinanceHandler) CreateReceipt(c *gin.Context) {
	var req service.CreateReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		req.PostedBy = &claims.UserID
	}
	receipt, err := h.finance.CreateReceipt(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, receipt)
}

// LockReceipt godoc
// @Summary Lock fee receipt
// @Tags Finance
// @Produce json
// @Param id path string true "Receipt ID"
// @Success 200 {object} response.Envelope
// @Router /fees/receipts/{id}/lock [put]
func (h *FinanceHandler) LockReceipt(c *gin.Context) {
	receipt, err := h.finance.LockReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, receipt, nil)
}

// Outstanding godoc
// @Summary Outstanding balance for a student and course
// @Tags Finance
// @Produce json
// @Param studentId query string true "Student ID"
// @Param courseId query string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /fees/outstanding [get]
func (h *FinanceHandler) Outstanding(c *gin.Context) {
	studentID := c.Query("studentId")
	courseID := c.Query("courseId")
	if studentID == "" || courseID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId and courseId are required"))
		return
	}
	balance, err := h.finance.Outstanding(c.Request.Context(), studentID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}

// CourseOutstanding godoc
// @Summary Aggregate fee position for a course
// @Tags Finance
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /fees/outstanding/course/{id} [get]
func (h *FinanceHandler) CourseOutstanding(c *gin.Context) {
	summary, err := h.finance.CourseOutstanding(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// CreateExpense godoc
// @Summary Record expense
// @Tags Finance
// @Accept json
// @Produce json
// @Param payload body service.CreateExpenseRequest true "Expense payload"
// @Success 201 {object} response.Envelope
// @Router /expenses [post]
func (h *FinanceHandler) CreateExpense(c *gin.Context) {
	var req service.CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		req.AddedBy = &claims.UserID
	}
	expense, err := h.finance.CreateExpense(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, expense)
}

// ListExpenses godoc
// @Summary List expenses
// @Tags Finance
// @Produce json
// @Param from query string false "Date from (YYYY-MM-DD)"
// @Param to query string false "Date to (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /expenses [get]
func (h *FinanceHandler) ListExpenses(c *gin.Context) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			from = &parsed
		}
	}
	if raw := c.Query("to"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			to = &parsed
		}
	}
	expenses, err := h.finance.ListExpenses(c.Request.Context(), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, expenses, nil)
}

// FinanceSummary godoc
// @Summary Income, expense and net profit totals
// @Tags Analytics
// @Produce json
// @Param from query string false "Date from (YYYY-MM-DD)"
// @Param to query string false "Date to (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /analytics/finance/summary [get]
func (h *FinanceHandler) FinanceSummary(c *gin.Context) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			from = &parsed
		}
	}
	if raw := c.Query("to"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			to = &parsed
		}
	}
	summary, err := h.finance.Summary(c.Request.Context(), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// IncomeExpenseTrend godoc
// @Summary Monthly income-versus-expense trend
// @Tags Analytics
// @Produce json
// @Param months query int false "Trailing months" default(12)
// @Success 200 {object} response.Envelope
// @Router /analytics/finance/income-expense [get]
func (h *FinanceHandler) IncomeExpenseTrend(c *gin.Context) {
	months := 12
	if parsed, err := strconv.Atoi(c.DefaultQuery("months", "12")); err == nil {
		months = parsed
	}
	trend, err := h.finance.IncomeExpenseTrend(c.Request.Context(), months)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trend, nil)
}

// CourseIncome godoc
// @Summary Collections summary for a course
// @Tags Analytics
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /analytics/finance/course/{id} [get]
func (h *FinanceHandler) CourseIncome(c *gin.Context) {
	summary, err := h.finance.CourseIncome(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
