package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	quotedomain "github.com/smallbiznis/atelier/internal/quote/domain"
)

type createQuoteRequest struct {
	ClientID           snowflake.ID     `json:"client_id"`
	QuoteDate          *time.Time       `json:"quote_date"`
	ValidUntil         *time.Time       `json:"valid_until"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage"`
	IsDealerDiscount   bool             `json:"is_dealer_discount"`
	Notes              *string          `json:"notes"`
	Lines              []lineRequest    `json:"lines"`
}

func (s *Server) CreateQuote(c *gin.Context) {
	var req createQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}
	lines, err := parseLines(req.Lines)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	create := quotedomain.CreateRequest{
		ClientID:           req.ClientID,
		ValidUntil:         req.ValidUntil,
		DiscountPercentage: req.DiscountPercentage,
		IsDealerDiscount:   req.IsDealerDiscount,
		Notes:              req.Notes,
		Lines:              lines,
	}
	if req.QuoteDate != nil {
		create.QuoteDate = *req.QuoteDate
	}

	created, err := s.quoteSvc.Create(c.Request.Context(), create)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) ListQuotes(c *gin.Context) {
	var req quotedomain.ListRequest
	if raw := c.Query("status"); raw != "" {
		status := quotedomain.QuoteStatus(raw)
		if !quotedomain.ValidQuoteStatus(status) {
			AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
			return
		}
		req.Status = &status
	}
	if raw := c.Query("client_id"); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("client_id", "invalid_id", "invalid id"))
			return
		}
		req.ClientID = &id
	}

	quotes, err := s.quoteSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": quotes})
}

func (s *Server) GetQuoteByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	item, err := s.quoteSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListQuoteItems(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	items, err := s.quoteSvc.Items(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) AddQuoteItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req lineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}
	line, err := req.toLine()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	updated, err := s.quoteSvc.AddItem(c.Request.Context(), id, line)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) UpdateQuoteItemPrice(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "itemID")
	if !ok {
		return
	}
	var req updateItemPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}

	updated, err := s.quoteSvc.UpdateItemPrice(c.Request.Context(), id, itemID, req.Price)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) RemoveQuoteItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "itemID")
	if !ok {
		return
	}

	updated, err := s.quoteSvc.RemoveItem(c.Request.Context(), id, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) SetQuoteDiscount(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req setDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}

	updated, err := s.quoteSvc.SetDiscount(c.Request.Context(), id, quotedomain.SetDiscountRequest{
		DiscountPercentage: req.DiscountPercentage,
		IsDealerDiscount:   req.IsDealerDiscount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) UpdateQuoteStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}

	updated, err := s.quoteSvc.UpdateStatus(c.Request.Context(), id, quotedomain.QuoteStatus(req.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) RecomputeQuote(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	updated, err := s.quoteSvc.Recompute(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) ConvertQuote(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	invoice, err := s.quoteSvc.Convert(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}
