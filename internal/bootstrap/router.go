package bootstrap

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpapi "github.com/Alyfish/spacestest-v0-mvp/internal/api/http"
	"github.com/Alyfish/spacestest-v0-mvp/internal/api/http/middleware"
	projecthttp "github.com/Alyfish/spacestest-v0-mvp/internal/projects/http"
)

type RouterDeps struct {
	ServiceName string
	Version     string
	App         *App
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	a := dep.App
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(dep.ServiceName))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     a.Config.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RequestIDMiddleware(a.Log))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, a.Config.Store.Backend, a.DB, a.Redis)
	healthHandler.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry})))

	api := r.Group("/api/v1")
	projects := projecthttp.New(a.Service, a.Log)
	projects.Register(api.Group("/projects"))
	projects.RegisterCatalog(api.Group("/catalog"))

	return r
}
