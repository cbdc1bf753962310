package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	clientdomain "github.com/smallbiznis/atelier/internal/client/domain"
)

type createClientRequest struct {
	FirstName       string          `json:"first_name"`
	LastName        string          `json:"last_name"`
	Email           *string         `json:"email"`
	Phone           string          `json:"phone"`
	DefaultDiscount decimal.Decimal `json:"default_discount_percentage"`
}

func (s *Server) CreateClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		AbortWithError(c, newValidationError("name", "required", "first and last name are required"))
		return
	}

	created, err := s.clientSvc.Create(c.Request.Context(), clientdomain.Client{
		FirstName:                 strings.TrimSpace(req.FirstName),
		LastName:                  strings.TrimSpace(req.LastName),
		Email:                     req.Email,
		Phone:                     req.Phone,
		DefaultDiscountPercentage: req.DefaultDiscount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) ListClients(c *gin.Context) {
	clients, err := s.clientSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": clients})
}

func (s *Server) GetClient(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	item, err := s.clientSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

type setClientDiscountRequest struct {
	DefaultDiscount decimal.Decimal `json:"default_discount_percentage"`
}

func (s *Server) SetClientDefaultDiscount(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req setClientDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}

	updated, err := s.clientSvc.SetDefaultDiscount(c.Request.Context(), id, req.DefaultDiscount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": updated})
}
