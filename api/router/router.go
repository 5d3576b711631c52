package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dqmpipeline/dqm/api/handler"
	"github.com/dqmpipeline/dqm/pkg/logger"
)

// SetupRouter 设置路由
func SetupRouter(columnHandler *handler.ColumnHandler, healthHandler *handler.HealthHandler, logsHandler *handler.LogsHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":   "DQM",
			"status": "running",
		})
	})

	// 工作流直接调用的入口
	r.POST("/process_column", columnHandler.ProcessColumn)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Health)

		v1.POST("/process_column", columnHandler.ProcessColumn)
		v1.POST("/process_columns", columnHandler.ProcessColumns)
		v1.GET("/runs/:execution_id", columnHandler.GetRuns)
		v1.GET("/parsers", columnHandler.ListParsers)
		v1.GET("/logs/:execution_id", logsHandler.TailLogs)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handler.ErrorResponse{
			Name:        "NotFound",
			Description: "no route for " + c.Request.URL.Path,
			Code:        http.StatusNotFound,
		})
	})

	return r
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware 请求ID中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// LoggingMiddleware 日志中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		requestID := c.GetString("request_id")
		method := c.Request.Method
		path := c.Request.URL.Path
		statusCode := c.Writer.Status()

		logger.Info("HTTP Request",
			"request_id", requestID,
			"method", method,
			"path", path,
			"status", statusCode,
			"duration", duration,
			"client_ip", c.ClientIP(),
		)

		if statusCode >= http.StatusBadRequest {
			logger.Error("HTTP Error",
				"request_id", requestID,
				"method", method,
				"path", path,
				"status", statusCode,
				"duration", duration,
			)
		}
	}
}
