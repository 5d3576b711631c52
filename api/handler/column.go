package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dqmpipeline/dqm/internal/service"
	"github.com/dqmpipeline/dqm/pkg/logger"
)

// ColumnHandler 列检查处理器
type ColumnHandler struct {
	svc *service.ColumnService
}

// NewColumnHandler 创建列检查处理器
func NewColumnHandler(svc *service.ColumnService) *ColumnHandler {
	return &ColumnHandler{svc: svc}
}

// ProcessColumn 扫描单列
// @Summary 扫描单列并记录解析失败与规则违反
// @Tags dqm
// @Accept json
// @Produce json
// @Param request body service.ProcessColumnRequest true "列检查请求"
// @Success 200 {object} service.ProcessColumnResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /process_column [post]
func (h *ColumnHandler) ProcessColumn(c *gin.Context) {
	var req service.ProcessColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid process_column request", "error", err)
		bindError(c, err)
		return
	}

	resp, err := h.svc.ProcessColumn(c.Request.Context(), &req)
	if err != nil {
		logger.Error("Process column failed",
			"execution_id", req.WorkflowExecutionID,
			"table", req.SourceTable.FullTableID,
			"column", req.ColumnConfig.Column,
			"error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ProcessColumns 并发扫描同一张表的多列
// @Summary 并发扫描多列
// @Tags dqm
// @Accept json
// @Produce json
// @Param request body service.ProcessColumnsRequest true "多列检查请求"
// @Success 200 {object} service.ProcessColumnsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} service.ProcessColumnsResponse
// @Router /api/v1/process_columns [post]
func (h *ColumnHandler) ProcessColumns(c *gin.Context) {
	var req service.ProcessColumnsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid process_columns request", "error", err)
		bindError(c, err)
		return
	}

	resp, err := h.svc.ProcessColumns(c.Request.Context(), &req)
	if resp == nil {
		writeError(c, err)
		return
	}
	if err != nil {
		logger.Error("Process columns partially failed",
			"execution_id", req.WorkflowExecutionID,
			"table", req.SourceTable.FullTableID,
			"error", err)
	}
	c.JSON(resp.Code, resp)
}

// GetRuns 查询一次工作流执行下的运行记录
// @Summary 查询运行记录
// @Tags dqm
// @Produce json
// @Param execution_id path string true "工作流执行 ID"
// @Success 200 {object} SuccessResponse
// @Router /api/v1/runs/{execution_id} [get]
func (h *ColumnHandler) GetRuns(c *gin.Context) {
	executionID := c.Param("execution_id")
	runs, err := h.svc.Runs(c.Request.Context(), executionID)
	if err != nil {
		logger.Error("List runs failed", "execution_id", executionID, "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    http.StatusOK,
		Message: "success",
		Data:    runs,
	})
}

// ListParsers 列出解析器及其可用规则
func (h *ColumnHandler) ListParsers(c *gin.Context) {
	reg := h.svc.Registry()
	out := make(map[string][]string)
	for _, name := range reg.Parsers() {
		b, err := reg.MapParserToRules(name)
		if err != nil {
			continue
		}
		out[name] = b.RuleNames()
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: http.StatusOK, Message: "success", Data: out})
}
