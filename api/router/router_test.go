package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dqmpipeline/dqm/api/handler"
	"github.com/dqmpipeline/dqm/internal/config"
	"github.com/dqmpipeline/dqm/internal/database"
	"github.com/dqmpipeline/dqm/internal/model"
	"github.com/dqmpipeline/dqm/internal/service"
	"github.com/dqmpipeline/dqm/internal/source"
)

var ordersTable = model.NewTableMetadata("proj", "sales", "orders")

func newTestRouter(t *testing.T, records []source.Record) http.Handler {
	h, _ := newTestRouterWithLogDir(t, records)
	return h
}

func newTestRouterWithLogDir(t *testing.T, records []source.Record) (http.Handler, string) {
	t.Helper()
	cfg := config.Default()
	cfg.DQM.SourceBackend = source.BackendMemory
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "dqm.db")
	cfg.DQM.LocalLogDir = t.TempDir()

	db, err := database.Open(cfg.Database.SQLite)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	mem := source.NewMemory()
	mem.Put(ordersTable, records)
	svc := service.NewColumnService(cfg, service.Deps{
		Sources:  source.Deps{Memory: mem},
		Runs:     database.NewRunStore(db),
		PrintOut: io.Discard,
	})
	r := SetupRouter(
		handler.NewColumnHandler(svc),
		handler.NewHealthHandler(db, cfg),
		handler.NewLogsHandler(cfg.DQM.LocalLogDir),
	)
	return r, cfg.DQM.LocalLogDir
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func processBody(execID, column, parser string, rules ...model.RuleConfig) string {
	req := service.ProcessColumnRequest{
		WorkflowExecutionID: execID,
		SourceTable:         ordersTable,
		ColumnConfig:        model.ColumnConfig{Column: column, Parser: parser, Rules: rules},
	}
	b, _ := json.Marshal(req)
	return string(b)
}

func TestProcessColumnRoute(t *testing.T) {
	h := newTestRouter(t, []source.Record{{"qty": int64(-1)}, {"qty": int64(2)}, {"qty": "x"}})

	for _, path := range []string{"/process_column", "/api/v1/process_column"} {
		w, out := do(t, h, http.MethodPost, path, processBody("exec-1", "qty", "parse_int", model.RuleConfig{Rule: "is_not_negative"}))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, float64(200), out["code"])
		assert.Equal(t, "DQM processed 3 rows, with 1 parse failures, 0 rule errors, 1 rule check violations.", out["message"])
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	}
}

func TestProcessColumnMalformedConfig(t *testing.T) {
	h := newTestRouter(t, []source.Record{{"qty": int64(1)}})

	cases := map[string]string{
		"bad parser":   processBody("exec-1", "qty", "parse_date"),
		"bad rule":     processBody("exec-1", "qty", "parse_int", model.RuleConfig{Rule: "search_regex"}),
		"bad path":     processBody("exec-1", "a[b", "parse_int", model.RuleConfig{Rule: "is_not_negative"}),
		"no rules":     processBody("exec-1", "qty", "parse_int"),
		"invalid json": `{"source_table":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w, out := do(t, h, http.MethodPost, "/process_column", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "MalformedConfigError", out["name"])
			assert.Equal(t, float64(400), out["code"])
			assert.NotEmpty(t, out["description"])
		})
	}
}

func TestProcessColumnEmptySource(t *testing.T) {
	h := newTestRouter(t, nil)
	w, out := do(t, h, http.MethodPost, "/process_column", processBody("exec-1", "qty", "parse_int", model.RuleConfig{Rule: "is_not_negative"}))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "EmptySourceError", out["name"])
	assert.Equal(t, float64(500), out["code"])
}

func TestProcessColumnsAndRuns(t *testing.T) {
	h := newTestRouter(t, []source.Record{
		{"qty": int64(1), "name": "a@b.com"},
		{"qty": int64(-3), "name": "nobody"},
	})
	body, err := json.Marshal(service.ProcessColumnsRequest{
		WorkflowExecutionID: "exec-many",
		SourceTable:         ordersTable,
		ColumnConfigs: []model.ColumnConfig{
			{Column: "qty", Parser: "parse_int", Rules: []model.RuleConfig{{Rule: "is_not_negative"}}},
			{Column: "name", Parser: "parse_str", Rules: []model.RuleConfig{{Rule: "contains_at_sign"}}},
		},
	})
	require.NoError(t, err)

	w, out := do(t, h, http.MethodPost, "/api/v1/process_columns", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results, ok := out["results"].([]interface{})
	require.True(t, ok)
	assert.Len(t, results, 2)

	w, out = do(t, h, http.MethodGet, "/api/v1/runs/exec-many", "")
	require.Equal(t, http.StatusOK, w.Code)
	runs, ok := out["data"].([]interface{})
	require.True(t, ok)
	assert.Len(t, runs, 2)
}

func TestHealthAndParsers(t *testing.T) {
	h := newTestRouter(t, nil)

	w, out := do(t, h, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", out["status"])

	w, out = do(t, h, http.MethodGet, "/api/v1/parsers", "")
	assert.Equal(t, http.StatusOK, w.Code)
	data, ok := out["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, data, "parse_int")
	assert.Contains(t, data, "parse_str")
}

func TestRequestIDPassthroughAndNotFound(t *testing.T) {
	h := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/nope", bytes.NewReader(nil))
	req.Header.Set("X-Request-ID", "rid-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "rid-1", w.Header().Get("X-Request-ID"))
}

func TestTailLogs(t *testing.T) {
	h, dir := newTestRouterWithLogDir(t, nil)
	logTable := model.NewTableMetadata("proj", "dqm", "logs")
	execDir := filepath.Join(dir, filepath.FromSlash(logTable.TablePath), "exec-9")
	require.NoError(t, os.MkdirAll(execDir, 0o755))

	lines := []model.LogMessage{
		{WorkflowExecutionID: "exec-9", LogType: model.LogTypeSystem, Error: model.StrPtr("boom")},
		{WorkflowExecutionID: "exec-9", LogType: model.LogTypeRule, Column: model.StrPtr("qty"), Rule: model.StrPtr("is_not_negative")},
		{WorkflowExecutionID: "exec-9", LogType: model.LogTypeParser, Column: model.StrPtr("name"), Parser: model.StrPtr("parse_int")},
	}
	var buf bytes.Buffer
	for _, m := range lines {
		b, err := json.Marshal(m)
		require.NoError(t, err)
		buf.Write(append(b, '\n'))
	}
	require.NoError(t, os.WriteFile(filepath.Join(execDir, "a-000001.ndjson"), buf.Bytes(), 0o644))

	query := "?project_id=proj&dataset_id=dqm&table_name=logs"
	w, out := do(t, h, http.MethodGet, "/api/v1/logs/exec-9"+query, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := out["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["count"])

	w, out = do(t, h, http.MethodGet, "/api/v1/logs/exec-9"+query+"&column=qty", "")
	require.Equal(t, http.StatusOK, w.Code)
	data = out["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])

	w, out = do(t, h, http.MethodGet, "/api/v1/logs/exec-9"+query+"&log_type=system&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	data = out["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])

	w, out = do(t, h, http.MethodGet, "/api/v1/logs/other"+query, "")
	require.Equal(t, http.StatusOK, w.Code)
	data = out["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["count"])

	w, out = do(t, h, http.MethodGet, "/api/v1/logs/exec-9?project_id=proj", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MalformedConfigError", out["name"])
}
