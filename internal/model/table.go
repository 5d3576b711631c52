package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TableMetadata 定位一张表所需的元数据
// FullTableID 与 TablePath 仅在构造（或反序列化）时计算一次
type TableMetadata struct {
	ProjectID string `json:"project_id" yaml:"project_id"`
	DatasetID string `json:"dataset_id" yaml:"dataset_id"`
	TableName string `json:"table_name" yaml:"table_name"`

	FullTableID string `json:"-" yaml:"-"`
	TablePath   string `json:"-" yaml:"-"`
}

// NewTableMetadata 构造表元数据并缓存派生字段
func NewTableMetadata(projectID, datasetID, tableName string) TableMetadata {
	t := TableMetadata{ProjectID: projectID, DatasetID: datasetID, TableName: tableName}
	t.FullTableID = fmt.Sprintf("%s.%s.%s", projectID, datasetID, tableName)
	t.TablePath = fmt.Sprintf("projects/%s/datasets/%s/tables/%s", projectID, datasetID, tableName)
	return t
}

// ParseTableID 从 project.dataset.table 形式的完整 ID 构造表元数据
func ParseTableID(fullTableID string) (TableMetadata, error) {
	parts := strings.Split(strings.TrimSpace(fullTableID), ".")
	if len(parts) != 3 {
		return TableMetadata{}, fmt.Errorf("%w: table id %q must be project.dataset.table", ErrMalformedConfig, fullTableID)
	}
	for _, p := range parts {
		if p == "" {
			return TableMetadata{}, fmt.Errorf("%w: table id %q has an empty part", ErrMalformedConfig, fullTableID)
		}
	}
	return NewTableMetadata(parts[0], parts[1], parts[2]), nil
}

// Validate 校验三个定位字段均已填写
func (t TableMetadata) Validate() error {
	if strings.TrimSpace(t.ProjectID) == "" || strings.TrimSpace(t.DatasetID) == "" || strings.TrimSpace(t.TableName) == "" {
		return fmt.Errorf("%w: project_id, dataset_id and table_name are required", ErrMalformedConfig)
	}
	return nil
}

type tableMetadataFields struct {
	ProjectID string `json:"project_id" yaml:"project_id"`
	DatasetID string `json:"dataset_id" yaml:"dataset_id"`
	TableName string `json:"table_name" yaml:"table_name"`
}

func (t *TableMetadata) UnmarshalJSON(b []byte) error {
	var f tableMetadataFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*t = NewTableMetadata(f.ProjectID, f.DatasetID, f.TableName)
	return nil
}

// UnmarshalYAML 兼容 yaml.v3 的 Unmarshaler 接口（通过 decode 回调解耦具体库）
func (t *TableMetadata) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var f tableMetadataFields
	if err := unmarshal(&f); err != nil {
		return err
	}
	*t = NewTableMetadata(f.ProjectID, f.DatasetID, f.TableName)
	return nil
}

// SQLName 单库后端（SQLite）中使用的表名：dataset__table
func (t TableMetadata) SQLName() string {
	return t.DatasetID + "__" + t.TableName
}
