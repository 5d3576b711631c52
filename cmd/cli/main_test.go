package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dqmpipeline/dqm/internal/model"
)

const singleRequest = `
workflow_execution_id: local-1
source_table:
  project_id: proj
  dataset_id: sales
  table_name: orders
column_config:
  column: price
  parser: parse_float
  rules:
    - rule: is_not_negative
    - rule: is_within_strict_int_range
      args:
        lower_bound: 0
        upper_bound: 100
`

const manyRequest = `{
  "workflow_execution_id": "local-2",
  "source_table": {"project_id": "proj", "dataset_id": "sales", "table_name": "orders"},
  "column_configs": [
    {"column": "price", "parser": "parse_float", "rules": [{"rule": "is_not_negative"}]},
    {"column": "email", "parser": "parse_str", "rules": [{"rule": "is_email"}]}
  ]
}`

const fixture = `{"price": 10.5, "email": "a@b.com"}
{"price": -2, "email": "nope"}

{"price": "abc", "email": "c@d.org"}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func logLines(t *testing.T, out *bytes.Buffer) []model.LogMessage {
	t.Helper()
	var msgs []model.LogMessage
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		var m model.LogMessage
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		msgs = append(msgs, m)
	}
	return msgs
}

func TestRunSingleColumn(t *testing.T) {
	dir := t.TempDir()
	req := writeFile(t, dir, "req.yaml", singleRequest)
	rows := writeFile(t, dir, "rows.ndjson", fixture)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-request", req, "-fixture", rows}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	msgs := logLines(t, &stdout)
	require.Len(t, msgs, 3)
	assert.Equal(t, model.LogTypeRule, msgs[0].LogType)
	assert.Equal(t, "is_not_negative", *msgs[0].Rule)
	assert.Equal(t, model.LogTypeRule, msgs[1].LogType)
	assert.Equal(t, `{"lower_bound":0,"upper_bound":100}`, *msgs[1].RuleParams)
	assert.Equal(t, model.LogTypeParser, msgs[2].LogType)
	assert.Equal(t, "local-1", msgs[2].WorkflowExecutionID)
	assert.Contains(t, stderr.String(), "DQM processed 3 rows, with 1 parse failures, 0 rule errors, 2 rule check violations.")
}

func TestRunManyColumns(t *testing.T) {
	dir := t.TempDir()
	req := writeFile(t, dir, "req.json", manyRequest)
	rows := writeFile(t, dir, "rows.ndjson", fixture)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-request", req, "-fixture", rows}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	msgs := logLines(t, &stdout)
	var parser, rule int
	for _, m := range msgs {
		switch m.LogType {
		case model.LogTypeParser:
			parser++
		case model.LogTypeRule:
			rule++
		}
	}
	assert.Equal(t, 1, parser)
	// price 一条负数，email 两条命中（is_email 默认命中即违规）
	assert.Equal(t, 3, rule)
	assert.Contains(t, stderr.String(), `"results"`)
}

func TestRunBadConfig(t *testing.T) {
	dir := t.TempDir()
	req := writeFile(t, dir, "req.yaml", `
source_table: {project_id: p, dataset_id: d, table_name: t}
column_config: {column: x, parser: parse_date}
`)
	rows := writeFile(t, dir, "rows.ndjson", `{"x": 1}`)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-request", req, "-fixture", rows}, &stdout, &stderr)
	assert.Equal(t, exitBadConfig, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "invalid parser")
}

func TestRunMissingRequest(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitInvalidArgs, run(context.Background(), nil, &stdout, &stderr))
}

func TestLoadFixtureKeepsNumbers(t *testing.T) {
	rows := writeFile(t, t.TempDir(), "rows.ndjson", "{\"n\": 12345678901234567890}\n")
	records, err := loadFixture(rows)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, json.Number("12345678901234567890"), records[0]["n"])
}
