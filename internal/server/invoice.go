package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/atelier/internal/billing"
	invoicedomain "github.com/smallbiznis/atelier/internal/invoice/domain"
)

// lineRequest is the wire shape of a line item, shared by invoices and
// quotes. Exactly one of service_id / inventory_item_id must be set.
type lineRequest struct {
	ServiceID       *snowflake.ID   `json:"service_id"`
	InventoryItemID *snowflake.ID   `json:"inventory_item_id"`
	Description     *string         `json:"description"`
	Price           decimal.Decimal `json:"price"`
}

func (r lineRequest) toLine() (billing.Line, error) {
	var line billing.Line
	switch {
	case r.ServiceID != nil:
		line = billing.ServiceLine(*r.ServiceID, r.Price)
		line.InventoryItemID = r.InventoryItemID
	case r.InventoryItemID != nil:
		line = billing.InventoryLine(*r.InventoryItemID, r.Price)
	default:
		return billing.Line{}, billing.ErrMissingLineReference
	}
	line.Description = r.Description
	if err := line.Validate(); err != nil {
		return billing.Line{}, err
	}
	return line, nil
}

func parseLines(reqs []lineRequest) ([]billing.Line, error) {
	lines := make([]billing.Line, 0, len(reqs))
	for _, lr := range reqs {
		line, err := lr.toLine()
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

type createInvoiceRequest struct {
	ClientID           snowflake.ID     `json:"client_id"`
	InvoiceDate        *time.Time       `json:"invoice_date"`
	DueDate            *time.Time       `json:"due_date"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage"`
	IsDealerDiscount   bool             `json:"is_dealer_discount"`
	Notes              *string          `json:"notes"`
	Lines              []lineRequest    `json:"lines"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}
	lines, err := parseLines(req.Lines)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	create := invoicedomain.CreateRequest{
		ClientID:           req.ClientID,
		DiscountPercentage: req.DiscountPercentage,
		IsDealerDiscount:   req.IsDealerDiscount,
		Notes:              req.Notes,
		Lines:              lines,
	}
	if req.InvoiceDate != nil {
		create.InvoiceDate = *req.InvoiceDate
	}
	if req.DueDate != nil {
		create.DueDate = *req.DueDate
	}

	created, err := s.invoiceSvc.Create(c.Request.Context(), create)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) ListInvoices(c *gin.Context) {
	if number := c.Query("number"); number != "" {
		item, err := s.invoiceSvc.GetByNumber(c.Request.Context(), number)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": []invoicedomain.Invoice{item}})
		return
	}

	var req invoicedomain.ListRequest
	if raw := c.Query("status"); raw != "" {
		status := invoicedomain.InvoiceStatus(raw)
		if !invoicedomain.ValidInvoiceStatus(status) {
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
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("from", "invalid_date", "invalid date"))
			return
		}
		req.DateFrom = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("to", "invalid_date", "invalid date"))
			return
		}
		req.DateTo = &parsed
	}

	invoices, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invoices})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	item, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListInvoiceItems(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	items, err := s.invoiceSvc.Items(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) AddInvoiceItem(c *gin.Context) {
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

	updated, err := s.invoiceSvc.AddItem(c.Request.Context(), id, line)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

type updateItemPriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

func (s *Server) UpdateInvoiceItemPrice(c *gin.Context) {
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

	updated, err := s.invoiceSvc.UpdateItemPrice(c.Request.Context(), id, itemID, req.Price)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) RemoveInvoiceItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "itemID")
	if !ok {
		return
	}

	updated, err := s.invoiceSvc.RemoveItem(c.Request.Context(), id, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

type setDiscountRequest struct {
	DiscountPercentage *decimal.Decimal `json:"discount_percentage"`
	IsDealerDiscount   bool             `json:"is_dealer_discount"`
}

func (s *Server) SetInvoiceDiscount(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req setDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}

	updated, err := s.invoiceSvc.SetDiscount(c.Request.Context(), id, invoicedomain.SetDiscountRequest{
		DiscountPercentage: req.DiscountPercentage,
		IsDealerDiscount:   req.IsDealerDiscount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) UpdateInvoiceStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}

	updated, err := s.invoiceSvc.UpdateStatus(c.Request.Context(), id, invoicedomain.InvoiceStatus(req.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) RecomputeInvoice(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	updated, err := s.invoiceSvc.Recompute(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}
