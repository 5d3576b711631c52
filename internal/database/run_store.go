package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dqmpipeline/dqm/internal/model"
)

// RunStore 运行记录存取
type RunStore struct {
	db *gorm.DB
}

// NewRunStore 创建运行记录存储
func NewRunStore(conn *gorm.DB) *RunStore {
	return &RunStore{db: conn}
}

// Create 新建运行记录
func (s *RunStore) Create(ctx context.Context, run *model.RunRecord) error {
	return WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(run).Error
	}, 5, 50*time.Millisecond)
}

// Save 更新运行记录（计数、状态、结束时间）
func (s *RunStore) Save(ctx context.Context, run *model.RunRecord) error {
	return WithRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Save(run).Error
	}, 5, 50*time.Millisecond)
}

// ListByExecution 按工作流执行 ID 查询，按开始时间排序
func (s *RunStore) ListByExecution(ctx context.Context, executionID string) ([]model.RunRecord, error) {
	var runs []model.RunRecord
	err := s.db.WithContext(ctx).
		Where("workflow_execution_id = ?", executionID).
		Order("start_time ASC").
		Find(&runs).Error
	return runs, err
}
