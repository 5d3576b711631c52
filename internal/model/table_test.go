package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewTableMetadataDerivedFields(t *testing.T) {
	tm := NewTableMetadata("test_project", "test_dataset", "01_01_1980_export")
	assert.Equal(t, "test_project.test_dataset.01_01_1980_export", tm.FullTableID)
	assert.Equal(t, "projects/test_project/datasets/test_dataset/tables/01_01_1980_export", tm.TablePath)
}

func TestTableMetadataDerivedFieldsAreNotRecomputed(t *testing.T) {
	tm := NewTableMetadata("p", "d", "t")
	tm.TableName = "other"
	assert.Equal(t, "p.d.t", tm.FullTableID)
	assert.Equal(t, "projects/p/datasets/d/tables/t", tm.TablePath)
}

func TestTableMetadataUnmarshalJSON(t *testing.T) {
	var tm TableMetadata
	require.NoError(t, json.Unmarshal([]byte(`{"project_id":"p","dataset_id":"d","table_name":"t"}`), &tm))
	assert.Equal(t, "p.d.t", tm.FullTableID)
	assert.Equal(t, "projects/p/datasets/d/tables/t", tm.TablePath)
}

func TestTableMetadataUnmarshalYAML(t *testing.T) {
	var holder struct {
		Table TableMetadata `yaml:"table"`
	}
	src := "table:\n  project_id: p\n  dataset_id: d\n  table_name: t\n"
	require.NoError(t, yaml.Unmarshal([]byte(src), &holder))
	assert.Equal(t, "p.d.t", holder.Table.FullTableID)
}

func TestParseTableID(t *testing.T) {
	tm, err := ParseTableID("p.d.t")
	require.NoError(t, err)
	assert.Equal(t, "d", tm.DatasetID)

	for _, bad := range []string{"", "p.d", "p..t", "a.b.c.d"} {
		_, err := ParseTableID(bad)
		assert.ErrorIs(t, err, ErrMalformedConfig, bad)
	}
}

func TestTableMetadataValidate(t *testing.T) {
	assert.NoError(t, NewTableMetadata("p", "d", "t").Validate())
	assert.ErrorIs(t, NewTableMetadata("p", "", "t").Validate(), ErrMalformedConfig)
}
