package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/atelier/internal/archive"
	archivedomain "github.com/smallbiznis/atelier/internal/archive/domain"
	"github.com/smallbiznis/atelier/internal/client"
	clientservice "github.com/smallbiznis/atelier/internal/client/service"
	"github.com/smallbiznis/atelier/internal/company"
	companydomain "github.com/smallbiznis/atelier/internal/company/domain"
	"github.com/smallbiznis/atelier/internal/config"
	"github.com/smallbiznis/atelier/internal/expense"
	expenseservice "github.com/smallbiznis/atelier/internal/expense/service"
	"github.com/smallbiznis/atelier/internal/invoice"
	invoicedomain "github.com/smallbiznis/atelier/internal/invoice/domain"
	"github.com/smallbiznis/atelier/internal/metrics"
	"github.com/smallbiznis/atelier/internal/quote"
	quotedomain "github.com/smallbiznis/atelier/internal/quote/domain"
	"github.com/smallbiznis/atelier/internal/sequence"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	metrics.Module,
	sequence.Module,
	company.Module,
	client.Module,
	invoice.Module,
	quote.Module,
	expense.Module,
	archive.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	return r
}

func registerGin(m *metrics.Metrics) *gin.Engine {
	return NewEngine(m)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	genID      *snowflake.Node
	companySvc companydomain.Service
	clientSvc  *clientservice.Service
	invoiceSvc invoicedomain.Service
	quoteSvc   quotedomain.Service
	expenseSvc *expenseservice.Service
	archiveSvc archivedomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	GenID      *snowflake.Node
	CompanySvc companydomain.Service
	ClientSvc  *clientservice.Service
	InvoiceSvc invoicedomain.Service
	QuoteSvc   quotedomain.Service
	ExpenseSvc *expenseservice.Service
	ArchiveSvc archivedomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		genID:      p.GenID,
		companySvc: p.CompanySvc,
		clientSvc:  p.ClientSvc,
		invoiceSvc: p.InvoiceSvc,
		quoteSvc:   p.QuoteSvc,
		expenseSvc: p.ExpenseSvc,
		archiveSvc: p.ArchiveSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	api.GET("/company", s.GetCompanyProfile)
	api.PUT("/company", s.UpsertCompanyProfile)

	api.POST("/clients", s.CreateClient)
	api.GET("/clients", s.ListClients)
	api.GET("/clients/:id", s.GetClient)
	api.PUT("/clients/:id/discount", s.SetClientDefaultDiscount)

	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.GET("/invoices/:id/items", s.ListInvoiceItems)
	api.POST("/invoices/:id/items", s.AddInvoiceItem)
	api.PUT("/invoices/:id/items/:itemID", s.UpdateInvoiceItemPrice)
	api.DELETE("/invoices/:id/items/:itemID", s.RemoveInvoiceItem)
	api.PUT("/invoices/:id/discount", s.SetInvoiceDiscount)
	api.PUT("/invoices/:id/status", s.UpdateInvoiceStatus)
	api.POST("/invoices/:id/recompute", s.RecomputeInvoice)

	api.POST("/quotes", s.CreateQuote)
	api.GET("/quotes", s.ListQuotes)
	api.GET("/quotes/:id", s.GetQuoteByID)
	api.GET("/quotes/:id/items", s.ListQuoteItems)
	api.POST("/quotes/:id/items", s.AddQuoteItem)
	api.PUT("/quotes/:id/items/:itemID", s.UpdateQuoteItemPrice)
	api.DELETE("/quotes/:id/items/:itemID", s.RemoveQuoteItem)
	api.PUT("/quotes/:id/discount", s.SetQuoteDiscount)
	api.PUT("/quotes/:id/status", s.UpdateQuoteStatus)
	api.POST("/quotes/:id/recompute", s.RecomputeQuote)
	api.POST("/quotes/:id/convert", s.ConvertQuote)

	api.POST("/expenses", s.CreateExpense)
	api.GET("/expenses", s.ListExpenses)
	api.GET("/expenses/:id", s.GetExpense)

	api.POST("/archives", s.RunArchive)
	api.GET("/archives", s.ListArchives)
	api.GET("/archives/:year", s.GetArchive)
	api.POST("/archives/:year/unlock", s.UnlockArchive)
	api.POST("/archives/:year/lock", s.LockArchive)
	api.PUT("/archives/:year", s.UpdateArchive)
	api.DELETE("/archives/:year", s.DeleteArchive)
}
