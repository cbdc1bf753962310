package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	companydomain "github.com/smallbiznis/atelier/internal/company/domain"
)

type upsertCompanyRequest struct {
	Name               string  `json:"name"`
	Address            string  `json:"address"`
	Phone              string  `json:"phone"`
	Email              string  `json:"email"`
	GSTNumber          *string `json:"gst_number"`
	QSTNumber          *string `json:"qst_number"`
	IsTaxRegistered    bool    `json:"is_tax_registered"`
	FiscalYearEndMonth int     `json:"fiscal_year_end_month"`
	FiscalYearEndDay   int     `json:"fiscal_year_end_day"`
}

func (s *Server) GetCompanyProfile(c *gin.Context) {
	profile, err := s.companySvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": profile})
}

func (s *Server) UpsertCompanyProfile(c *gin.Context) {
	var req upsertCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}
	if req.FiscalYearEndMonth == 0 {
		req.FiscalYearEndMonth = 12
	}
	if req.FiscalYearEndDay == 0 {
		req.FiscalYearEndDay = 31
	}

	profile, err := s.companySvc.Upsert(c.Request.Context(), companydomain.Profile{
		Name:               strings.TrimSpace(req.Name),
		Address:            req.Address,
		Phone:              req.Phone,
		Email:              req.Email,
		GSTNumber:          req.GSTNumber,
		QSTNumber:          req.QSTNumber,
		IsTaxRegistered:    req.IsTaxRegistered,
		FiscalYearEndMonth: req.FiscalYearEndMonth,
		FiscalYearEndDay:   req.FiscalYearEndDay,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": profile})
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := snowflake.ParseString(raw)
	if err != nil {
		AbortWithError(c, newValidationError(name, "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}
