package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	expensedomain "github.com/smallbiznis/atelier/internal/expense/domain"
)

type createExpenseRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate time.Time       `json:"expense_date"`
	Category    string          `json:"category"`
	GSTAmount   decimal.Decimal `json:"gst_amount"`
	QSTAmount   decimal.Decimal `json:"qst_amount"`
	Notes       *string         `json:"notes"`
}

func (s *Server) CreateExpense(c *gin.Context) {
	var req createExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}

	created, err := s.expenseSvc.Create(c.Request.Context(), expensedomain.Expense{
		Description: req.Description,
		Amount:      req.Amount,
		ExpenseDate: req.ExpenseDate,
		Category:    expensedomain.Category(req.Category),
		GSTAmount:   req.GSTAmount,
		QSTAmount:   req.QSTAmount,
		Notes:       req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) ListExpenses(c *gin.Context) {
	var from, to time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("from", "invalid_date", "invalid date"))
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("to", "invalid_date", "invalid date"))
			return
		}
		to = parsed
	}

	expenses, err := s.expenseSvc.List(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": expenses})
}

func (s *Server) GetExpense(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	item, err := s.expenseSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}
