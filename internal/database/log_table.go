package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dqmpipeline/dqm/internal/model"
)

// LogTableAdmin 基于 gorm 的日志表管理：按 dataset__table 建表与逐行写入
type LogTableAdmin struct {
	db *gorm.DB
}

// NewLogTableAdmin 创建日志表管理器
func NewLogTableAdmin(conn *gorm.DB) *LogTableAdmin {
	return &LogTableAdmin{db: conn}
}

// GetTable 表是否存在
func (a *LogTableAdmin) GetTable(ctx context.Context, table model.TableMetadata) (bool, error) {
	return a.db.WithContext(ctx).Migrator().HasTable(table.SQLName()), nil
}

// CreateTable 按 LogMessage 结构建表（已存在时补齐列）
func (a *LogTableAdmin) CreateTable(ctx context.Context, table model.TableMetadata) error {
	return WithRetry(a.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Table(table.SQLName()).AutoMigrate(&model.LogMessage{})
	}, 5, 50*time.Millisecond)
}

// InsertRows 逐行写入；单行失败不影响其余行，返回失败行列表
func (a *LogTableAdmin) InsertRows(ctx context.Context, table model.TableMetadata, rows []model.LogMessage) ([]model.RowError, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := table.SQLName()
	var rowErrs []model.RowError
	for i := range rows {
		row := rows[i]
		err := WithRetry(a.db.WithContext(ctx), func(tx *gorm.DB) error {
			return tx.Table(name).Create(&row).Error
		}, 5, 50*time.Millisecond)
		if err != nil {
			rowErrs = append(rowErrs, model.RowError{Index: i, Reason: err.Error()})
		}
	}
	return rowErrs, nil
}
