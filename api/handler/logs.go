package handler

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dqmpipeline/dqm/internal/model"
	"github.com/dqmpipeline/dqm/pkg/logger"
)

// LogsHandler 查询落在本地目录的对象日志（MinIO 不可用时的回退目录）
type LogsHandler struct {
	dir string
}

// NewLogsHandler dir 为 dqm.local_log_dir
func NewLogsHandler(dir string) *LogsHandler {
	return &LogsHandler{dir: dir}
}

// TailLogs 按日志表与工作流执行 ID 返回末尾 N 条日志，可按类型与列过滤
// @Summary 查询本地对象日志
// @Tags dqm
// @Produce json
// @Param execution_id path string true "工作流执行 ID"
// @Param project_id query string true "日志表 project"
// @Param dataset_id query string true "日志表 dataset"
// @Param table_name query string true "日志表名"
// @Param log_type query string false "system/parser/rule"
// @Param column query string false "列名"
// @Param limit query int false "返回条数，默认 200"
// @Success 200 {object} SuccessResponse
// @Router /api/v1/logs/{execution_id} [get]
func (h *LogsHandler) TailLogs(c *gin.Context) {
	table := model.NewTableMetadata(c.Query("project_id"), c.Query("dataset_id"), c.Query("table_name"))
	if err := table.Validate(); err != nil {
		writeError(c, err)
		return
	}
	executionID := strings.TrimSpace(c.Param("execution_id"))
	if executionID == "" || strings.ContainsAny(executionID, `/\`) || executionID == ".." {
		writeError(c, fmt.Errorf("%w: invalid execution id %q", model.ErrMalformedConfig, executionID))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	logType := strings.TrimSpace(c.Query("log_type"))
	column := strings.TrimSpace(c.Query("column"))

	dir := filepath.Join(h.dir, filepath.FromSlash(table.TablePath), executionID)
	msgs, err := readObjectLogs(dir)
	if err != nil {
		logger.Error("Read object logs failed", "dir", dir, "error", err)
		writeError(c, err)
		return
	}

	filtered := make([]model.LogMessage, 0, len(msgs))
	for _, m := range msgs {
		if logType != "" && m.LogType != logType {
			continue
		}
		if column != "" && (m.Column == nil || *m.Column != column) {
			continue
		}
		filtered = append(filtered, m)
	}
	start := 0
	if len(filtered) > limit {
		start = len(filtered) - limit
	}
	tail := filtered[start:]

	c.JSON(http.StatusOK, SuccessResponse{
		Code:    http.StatusOK,
		Message: "success",
		Data: gin.H{
			"full_table_id": table.FullTableID,
			"count":         len(tail),
			"messages":      tail,
		},
	})
}

// readObjectLogs 按文件名顺序读取目录下全部 ndjson；目录不存在时返回空
func readObjectLogs(dir string) ([]model.LogMessage, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.LogMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".ndjson") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]model.LogMessage, 0, 1024)
	for _, name := range names {
		if err := appendLines(filepath.Join(dir, name), &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendLines(path string, out *[]model.LogMessage) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 10*1024*1024) // up to 10MB per line
	for s.Scan() {
		if len(strings.TrimSpace(s.Text())) == 0 {
			continue
		}
		var m model.LogMessage
		if err := json.Unmarshal(s.Bytes(), &m); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		*out = append(*out, m)
	}
	return s.Err()
}
