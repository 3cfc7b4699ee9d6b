package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/metra/internal/assignment"
	assignmentservice "github.com/smallbiznis/metra/internal/assignment/service"
	"github.com/smallbiznis/metra/internal/billingsync"
	billingsyncservice "github.com/smallbiznis/metra/internal/billingsync/service"
	"github.com/smallbiznis/metra/internal/clock"
	"github.com/smallbiznis/metra/internal/config"
	"github.com/smallbiznis/metra/internal/directory"
	directoryservice "github.com/smallbiznis/metra/internal/directory/service"
	"github.com/smallbiznis/metra/internal/invoice"
	invoiceservice "github.com/smallbiznis/metra/internal/invoice/service"
	"github.com/smallbiznis/metra/internal/meter"
	meterservice "github.com/smallbiznis/metra/internal/meter/service"
	"github.com/smallbiznis/metra/internal/migration"
	"github.com/smallbiznis/metra/internal/observability"
	obslogger "github.com/smallbiznis/metra/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/metra/internal/observability/metrics"
	obstracing "github.com/smallbiznis/metra/internal/observability/tracing"
	"github.com/smallbiznis/metra/internal/pricing"
	pricingservice "github.com/smallbiznis/metra/internal/pricing/service"
	"github.com/smallbiznis/metra/internal/progress"
	progressservice "github.com/smallbiznis/metra/internal/progress/service"
	"github.com/smallbiznis/metra/internal/ratelimit"
	"github.com/smallbiznis/metra/internal/reading"
	readingservice "github.com/smallbiznis/metra/internal/reading/service"
	"github.com/smallbiznis/metra/internal/readingcycle"
	readingcycleservice "github.com/smallbiznis/metra/internal/readingcycle/service"
	"github.com/smallbiznis/metra/internal/scheduler"
	"github.com/smallbiznis/metra/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	db.Module,
	observability.Module,
	migration.Module,
	directory.Module,
	meter.Module,
	pricing.Module,
	readingcycle.Module,
	assignment.Module,
	reading.Module,
	progress.Module,
	invoice.Module,
	billingsync.Module,
	ratelimit.Module,
	scheduler.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	genID          *snowflake.Node
	directorySvc   *directoryservice.Service
	meterSvc       *meterservice.Service
	pricingSvc     *pricingservice.Service
	cycleSvc       *readingcycleservice.Service
	assignmentSvc  *assignmentservice.Service
	readingSvc     *readingservice.Service
	progressSvc    *progressservice.Service
	invoiceSvc     *invoiceservice.Service
	billingSyncSvc *billingsyncservice.Service
	bulkLimiter    *ratelimit.Limiter
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	GenID          *snowflake.Node
	DirectorySvc   *directoryservice.Service
	MeterSvc       *meterservice.Service
	PricingSvc     *pricingservice.Service
	CycleSvc       *readingcycleservice.Service
	AssignmentSvc  *assignmentservice.Service
	ReadingSvc     *readingservice.Service
	ProgressSvc    *progressservice.Service
	InvoiceSvc     *invoiceservice.Service
	BillingSyncSvc *billingsyncservice.Service
	BulkLimiter    *ratelimit.Limiter `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		genID:          p.GenID,
		directorySvc:   p.DirectorySvc,
		meterSvc:       p.MeterSvc,
		pricingSvc:     p.PricingSvc,
		cycleSvc:       p.CycleSvc,
		assignmentSvc:  p.AssignmentSvc,
		readingSvc:     p.ReadingSvc,
		progressSvc:    p.ProgressSvc,
		invoiceSvc:     p.InvoiceSvc,
		billingSyncSvc: p.BillingSyncSvc,
		bulkLimiter:    p.BulkLimiter,
		obsMetrics:     p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Cycles --------
	api.GET("/cycles", s.ListCycles)
	api.POST("/cycles", s.CreateCycle)
	api.GET("/cycles/:id", s.GetCycleByID)
	api.POST("/cycles/:id/status", s.ChangeCycleStatus)
	api.POST("/cycles/:id/complete", s.CompleteCycle)
	api.POST("/cycles/:id/export-invoices", s.ExportCycleInvoices)
	api.GET("/cycles/:id/unassigned", s.GetCycleUnassignedInfo)
	api.GET("/cycles/:id/invoices", s.ListCycleInvoices)

	// -------- Assignments --------
	api.POST("/assignments", s.CreateAssignment)
	api.GET("/assignments", s.ListAssignments)
	api.GET("/assignments/:id", s.GetAssignmentByID)
	api.DELETE("/assignments/:id", s.DeleteAssignment)
	api.POST("/assignments/:id/complete", s.CompleteAssignment)
	api.GET("/assignments/:id/progress", s.GetAssignmentProgress)

	// -------- Readings --------
	api.POST("/readings", s.SubmitReading)
	api.POST("/readings/unit", s.SubmitReadingForUnit)
	api.POST("/readings/bulk", ratelimit.Middleware(s.bulkLimiter, s.obsMetrics), s.BulkSubmitReadings)
	api.GET("/readings", s.ListReadings)

	// -------- Pricing --------
	api.GET("/pricing-tiers", s.ListPricingTiers)
	api.POST("/pricing-tiers", s.CreatePricingTier)
	api.PATCH("/pricing-tiers/:id", s.UpdatePricingTier)
	api.DELETE("/pricing-tiers/:id", s.DeletePricingTier)

	// -------- Billing sync --------
	api.POST("/billing-cycles/sync-missing", s.SyncMissingBillingCycles)
	api.GET("/billing-cycles/missing", s.ListMissingBillingCycles)
	api.GET("/billing-cycles", s.ListBillingCycles)

	// -------- Meters --------
	api.GET("/meters", s.ListMeters)
	api.GET("/units/:id/meters", s.ListUnitMeters)
	api.POST("/meters/:id/replace", s.ReplaceMeter)

	// -------- Directory reads --------
	api.GET("/buildings", s.ListBuildings)
	api.GET("/buildings/:id/units", s.ListBuildingUnits)
	api.GET("/buildings/:id/meters", s.ListBuildingMeters)
	api.GET("/staff", s.ListStaff)
}
