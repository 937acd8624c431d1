package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/palcoscenico/agibilita/internal/config"
	directorydomain "github.com/palcoscenico/agibilita/internal/directory/domain"
	filingdomain "github.com/palcoscenico/agibilita/internal/filing/domain"
	"github.com/palcoscenico/agibilita/internal/observability/logger"
	"github.com/palcoscenico/agibilita/internal/respimport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
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
	engine       *gin.Engine
	cfg          config.Config
	genID        *snowflake.Node
	filingSvc    filingdomain.Service
	directorySvc directorydomain.Service
	importSvc    *respimport.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	GenID        *snowflake.Node
	FilingSvc    filingdomain.Service
	DirectorySvc directorydomain.Service
	ImportSvc    *respimport.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		genID:        p.GenID,
		filingSvc:    p.FilingSvc,
		directorySvc: p.DirectorySvc,
		importSvc:    p.ImportSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Filings --------
	api.POST("/filings", s.CreateFiling)
	api.GET("/filings", s.ListFilings)
	api.GET("/filings/:id", s.GetFiling)
	api.PUT("/filings/:id/assignments", s.ReplaceAssignments)
	api.DELETE("/filings/:id", s.DeleteFiling)
	api.GET("/filings/:id/document", s.DownloadFilingDocument)
	api.POST("/filings/:id/submit", s.SubmitFiling)

	// -------- Response imports --------
	api.POST("/responses/import", s.ImportResponses)
}
