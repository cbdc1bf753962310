package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	archivedomain "github.com/smallbiznis/atelier/internal/archive/domain"
)

type runArchiveRequest struct {
	Year   int     `json:"year"`
	DryRun bool    `json:"dry_run"`
	Actor  string  `json:"actor"`
	Notes  *string `json:"notes"`
}

func (s *Server) RunArchive(c *gin.Context) {
	var req runArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}
	if req.Year <= 0 {
		AbortWithError(c, newValidationError("year", "invalid_year", "invalid year"))
		return
	}

	summary, err := s.archiveSvc.Run(c.Request.Context(), archivedomain.Request{
		Year:   req.Year,
		DryRun: req.DryRun,
		Actor:  actorFrom(c, req.Actor),
		Notes:  req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if req.DryRun {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": summary})
}

func (s *Server) ListArchives(c *gin.Context) {
	archives, err := s.archiveSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": archives})
}

func (s *Server) GetArchive(c *gin.Context) {
	year, ok := parseYearParam(c)
	if !ok {
		return
	}
	archive, err := s.archiveSvc.Get(c.Request.Context(), year)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":        archive,
		"net_profit":  archive.NetProfit(),
		"tax_summary": archive.TaxSummary(),
	})
}

func (s *Server) UnlockArchive(c *gin.Context) {
	year, ok := parseYearParam(c)
	if !ok {
		return
	}
	archive, err := s.archiveSvc.Unlock(c.Request.Context(), year, actorFrom(c, ""))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": archive})
}

func (s *Server) LockArchive(c *gin.Context) {
	year, ok := parseYearParam(c)
	if !ok {
		return
	}
	archive, err := s.archiveSvc.Lock(c.Request.Context(), year, actorFrom(c, ""))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": archive})
}

type updateArchiveRequest struct {
	Notes *string `json:"notes"`
}

func (s *Server) UpdateArchive(c *gin.Context) {
	year, ok := parseYearParam(c)
	if !ok {
		return
	}
	var req updateArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}

	archive, err := s.archiveSvc.Update(c.Request.Context(), year, archivedomain.UpdateRequest{
		Actor: actorFrom(c, ""),
		Notes: req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": archive})
}

func (s *Server) DeleteArchive(c *gin.Context) {
	year, ok := parseYearParam(c)
	if !ok {
		return
	}
	if err := s.archiveSvc.Delete(c.Request.Context(), year, actorFrom(c, "")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseYearParam(c *gin.Context) (int, bool) {
	year, err := strconv.Atoi(strings.TrimSpace(c.Param("year")))
	if err != nil || year <= 0 {
		AbortWithError(c, newValidationError("year", "invalid_year", "invalid year"))
		return 0, false
	}
	return year, true
}

// actorFrom derives the acting user from request headers. There is no
// auth layer in this core; the admin surface in front of it is expected
// to set these.
func actorFrom(c *gin.Context, fallback string) archivedomain.Actor {
	name := strings.TrimSpace(c.GetHeader("X-Actor"))
	if name == "" {
		name = fallback
	}
	return archivedomain.Actor{
		Name:      name,
		Superuser: c.GetHeader("X-Actor-Superuser") == "true",
	}
}
