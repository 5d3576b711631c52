package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dqmpipeline/dqm/internal/config"
	"github.com/dqmpipeline/dqm/internal/database"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	db  *gorm.DB
	cfg *config.Config
}

// NewHealthHandler db 可为 nil（未启用运行记录时）
func NewHealthHandler(db *gorm.DB, cfg *config.Config) *HealthHandler {
	return &HealthHandler{db: db, cfg: cfg}
}

// Health 健康检查
// @Summary 服务健康状态
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/v1/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	// 热加载后的配置优先
	cfg := config.Get()
	if cfg == nil {
		cfg = h.cfg
	}
	if cfg != nil {
		body["dqm_version_id"] = cfg.DQM.VersionID
		body["source_backend"] = cfg.DQM.SourceBackend
		body["log_backend"] = cfg.DQM.LogBackend
		body["log_level"] = cfg.Log.Level
	}
	if h.db != nil {
		if err := database.Health(h.db); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = database.GetStats(h.db)
	}
	c.JSON(http.StatusOK, body)
}
