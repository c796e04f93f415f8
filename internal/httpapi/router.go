package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/scanflow/platform/internal/jobrepo"
	"github.com/scanflow/platform/internal/platformconfig"
	"github.com/scanflow/platform/internal/workflowconfig"
)

// RouterConfig carries everything NewRouter needs to wire routes; mirrors
// the teacher's router.go "all handlers passed in, nothing built inline"
// convention.
type RouterConfig struct {
	Repo            *jobrepo.Repo
	Workflows       *workflowconfig.Store
	PlatformConfigs *platformconfig.Store
	AllowedOrigins  []string
}

// NewRouter builds the gin.Engine serving the three endpoints in spec §6.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	workflowHandler := NewWorkflowHandler(cfg.Repo, cfg.Workflows)
	healthHandler := NewHealthHandler(cfg.PlatformConfigs)

	r.GET("/health", healthHandler.Health)

	workflows := r.Group("/workflows")
	{
		workflows.POST("/execute", workflowHandler.Execute)
		workflows.GET("/jobs/:jobId", workflowHandler.GetJob)
	}

	return r
}
