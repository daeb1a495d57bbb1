package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/caulicare-api/internal/config"
	"github.com/Brownie44l1/caulicare-api/internal/metrics"
	"github.com/Brownie44l1/caulicare-api/internal/model"
)

// Dependencies defines what the HTTP layer needs from startup.
type Dependencies struct {
	Registry *model.Registry
	Metrics  *metrics.Metrics
	Config   *config.Config
}

// NewEngine builds a gin engine with middleware and every route registered.
func NewEngine(deps *Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(), CORS(deps.Config.Server.AllowedOrigins))

	RegisterRoutes(r, deps)
	return r
}

// RegisterRoutes registers the service routes on r.
func RegisterRoutes(r *gin.Engine, deps *Dependencies) {
	h := NewHandler(deps.Registry, deps.Metrics, deps.Config.ServiceName, deps.Config.Prediction)

	r.GET("/", h.Root)
	r.GET("/favicon.ico", h.Favicon)
	r.GET("/health", h.Health)
	r.GET("/models", h.Models)
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	r.POST("/predict", h.Predict)
	r.POST("/predict_all", h.PredictAll)
	r.POST("/predict_model", h.PredictModel)
}
