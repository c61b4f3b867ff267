package repository

import (
	"context"
	"time"

	"mhealth-data/internal/domain"
)

// SleepQuery 睡眠记录查询条件（过滤 + 分页 + 排序）
type SleepQuery struct {
	PatientID string     // 必填（记录归属患者）
	StartDate *time.Time // 可选，start_time >= StartDate
	EndDate   *time.Time // 可选，start_time <= EndDate
	Page      int        // 页码，默认 1
	Size      int        // 每页数量，默认 100
	SortDesc  bool       // 按 start_time 排序方向，默认升序
}

// SleepRepository 睡眠记录 Repository 接口
// 使用强类型领域模型；错误统一映射为 domain 层的
// ValidationError / ConflictError / RepositoryError
type SleepRepository interface {
	// CheckExist 按 (patient_id, start_time) 判断记录是否已存在（应用层预检，
	// 存储层唯一约束才是权威兜底）
	CheckExist(ctx context.Context, rec *domain.SleepRecord) (bool, error)

	// Create 持久化新记录；唯一约束冲突映射为 ConflictError
	Create(ctx context.Context, rec *domain.SleepRecord) (*domain.SleepRecord, error)

	// Update 整体更新记录；记录不存在时返回 (nil, nil)
	Update(ctx context.Context, rec *domain.SleepRecord) (*domain.SleepRecord, error)

	// GetByID 按患者和记录 ID 查询；不存在时返回 (nil, nil)
	GetByID(ctx context.Context, patientID, sleepID string) (*domain.SleepRecord, error)

	// Find 按查询条件返回记录列表
	Find(ctx context.Context, q SleepQuery) ([]*domain.SleepRecord, error)

	// Count 按查询条件返回记录总数（忽略分页）
	Count(ctx context.Context, q SleepQuery) (int, error)

	// Delete 删除记录；返回是否实际删除
	Delete(ctx context.Context, patientID, sleepID string) (bool, error)
}

// Normalize 填充分页默认值
func (q *SleepQuery) Normalize() {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 {
		q.Size = 100
	}
}
