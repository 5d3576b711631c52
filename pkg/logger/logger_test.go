package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsPairs(t *testing.T) {
	f := fields([]interface{}{"column", "price", "rows", 4, "dangling"})
	assert.Equal(t, logrus.Fields{"column": "price", "rows": 4, "extra": "dangling"}, f)
	assert.Nil(t, fields(nil))
}

func TestNewJSONFormatter(t *testing.T) {
	l, err := New(Config{Level: "debug", Format: "json", Output: "console"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.WithFields(fields([]interface{}{"column", "price"})).Info("processed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "processed", line["msg"])
	assert.Equal(t, "price", line["column"])
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "chatty"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestNewFileOutputCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "dqm.log")
	_, err := New(Config{Level: "info", Output: "file", FilePath: path, MaxSize: 1})
	require.NoError(t, err)
	assert.DirExists(t, filepath.Dir(path))
}
