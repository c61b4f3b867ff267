package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mhealth-data/internal/domain"
	"mhealth-data/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher 领域事件发布接口（总线发布失败不阻塞 API）
type EventPublisher interface {
	PublishSleepSaved(rec *domain.SleepRecord) error
	PublishSleepDeleted(patientID, sleepID string) error
}

// SleepService 睡眠记录提交服务接口
type SleepService interface {
	// AddSleep 单条提交：校验 -> 查重 -> 持久化 -> 尽力而为的觉醒事件补全
	// 校验/冲突错误直接返回；补全失败记录日志后吞掉，返回未补全的已创建记录
	AddSleep(ctx context.Context, rec *domain.SleepRecord) (*domain.SleepRecord, error)

	// AddSleepBatch 批量提交：严格按输入顺序逐条走单条路径，单条失败不中断批次
	// 永不返回错误，所有结果都体现在聚合结果中
	AddSleepBatch(ctx context.Context, recs []*domain.SleepRecord) *domain.BatchOutcome

	// RunAwakenings 按需触发夜间时段限定的觉醒事件推断（时序服务错误向上传播）
	RunAwakenings(ctx context.Context, patientID, sleepID string) (*domain.SleepRecord, error)

	// ListSleeps 查询患者的睡眠记录列表（返回记录与总数）
	ListSleeps(ctx context.Context, q repository.SleepQuery) ([]*domain.SleepRecord, int, error)

	// GetSleep 查询单条记录；不存在时返回 (nil, nil)
	GetSleep(ctx context.Context, patientID, sleepID string) (*domain.SleepRecord, error)

	// DeleteSleep 删除记录；返回是否实际删除
	DeleteSleep(ctx context.Context, patientID, sleepID string) (bool, error)
}

// sleepService 实现
type sleepService struct {
	sleepRepo  repository.SleepRepository
	awakenings AwakeningsService
	publisher  EventPublisher // 可为 nil（总线未启用）
	logger     *zap.Logger
}

// NewSleepService 创建 SleepService 实例
func NewSleepService(
	sleepRepo repository.SleepRepository,
	awakenings AwakeningsService,
	publisher EventPublisher,
	logger *zap.Logger,
) SleepService {
	return &sleepService{
		sleepRepo:  sleepRepo,
		awakenings: awakenings,
		publisher:  publisher,
		logger:     logger,
	}
}

// AddSleep 单条提交
func (s *sleepService) AddSleep(ctx context.Context, rec *domain.SleepRecord) (*domain.SleepRecord, error) {
	if err := domain.ValidateSleepRecord(rec); err != nil {
		return nil, err
	}

	// 应用层预检只是优化；并发提交可能同时通过，存储层唯一约束兜底，
	// Create 返回的重复键错误与预检映射为同一种 ConflictError
	exists, err := s.sleepRepo.CheckExist(ctx, rec)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &domain.ConflictError{
			Message: "A registration with the same unique data already exists!",
		}
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Pattern.ComputeSummary()

	created, err := s.sleepRepo.Create(ctx, rec)
	if err != nil {
		return nil, err
	}

	// 创建成功后自动补全夜间觉醒事件：补全是建议性的、可重算的，
	// 失败只记日志不传播，创建结果不依赖补全结果
	enriched, err := s.awakenings.InferNightAwakenings(ctx, created)
	if err != nil {
		s.logger.Warn("Night awakenings enrichment failed, returning record without enrichment",
			zap.String("sleep_id", created.ID),
			zap.String("patient_id", created.PatientID),
			zap.Error(err),
		)
		enriched = created
	}

	s.publishSaved(enriched)
	return enriched, nil
}

// AddSleepBatch 批量提交
func (s *sleepService) AddSleepBatch(ctx context.Context, recs []*domain.SleepRecord) *domain.BatchOutcome {
	outcome := domain.NewBatchOutcome()

	// 严格串行：限制对时序服务的负载并保证确定性顺序
	for _, rec := range recs {
		submitted := rec.Clone() // 错误项回传原始输入，便于调用方重试
		created, err := s.AddSleep(ctx, rec)
		if err != nil {
			code, message, description := classifyBatchError(err)
			outcome.AppendError(code, message, description, submitted)
			continue
		}
		outcome.AppendSuccess(domain.BatchItemCreated, created)
	}

	return outcome
}

// RunAwakenings 按需触发觉醒事件推断
func (s *sleepService) RunAwakenings(ctx context.Context, patientID, sleepID string) (*domain.SleepRecord, error) {
	rec, err := s.sleepRepo.GetByID(ctx, patientID, sleepID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return s.awakenings.InferAwakenings(ctx, rec)
}

// ListSleeps 查询患者的睡眠记录列表
func (s *sleepService) ListSleeps(ctx context.Context, q repository.SleepQuery) ([]*domain.SleepRecord, int, error) {
	if q.PatientID == "" {
		return nil, 0, fmt.Errorf("patient_id is required")
	}
	records, err := s.sleepRepo.Find(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.sleepRepo.Count(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// GetSleep 查询单条记录
func (s *sleepService) GetSleep(ctx context.Context, patientID, sleepID string) (*domain.SleepRecord, error) {
	return s.sleepRepo.GetByID(ctx, patientID, sleepID)
}

// DeleteSleep 删除记录
func (s *sleepService) DeleteSleep(ctx context.Context, patientID, sleepID string) (bool, error) {
	deleted, err := s.sleepRepo.Delete(ctx, patientID, sleepID)
	if err != nil {
		return false, err
	}
	if deleted && s.publisher != nil {
		if err := s.publisher.PublishSleepDeleted(patientID, sleepID); err != nil {
			s.logger.Warn("Failed to publish sleep deleted event",
				zap.String("sleep_id", sleepID),
				zap.Error(err),
			)
		}
	}
	return deleted, nil
}

// publishSaved 发布记录保存事件（尽力而为）
func (s *sleepService) publishSaved(rec *domain.SleepRecord) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSleepSaved(rec); err != nil {
		s.logger.Warn("Failed to publish sleep saved event",
			zap.String("sleep_id", rec.ID),
			zap.Error(err),
		)
	}
}

// classifyBatchError 将单条路径的错误归类为批量结果项
func classifyBatchError(err error) (code int, message, description string) {
	var vErr *domain.ValidationError
	var cErr *domain.ConflictError
	switch {
	case errors.As(err, &vErr):
		return domain.BatchItemBadRequest, vErr.Message, vErr.Description
	case errors.As(err, &cErr):
		return domain.BatchItemConflict, cErr.Message, ""
	default:
		return domain.BatchItemInternalError, "An internal server error has occurred.", err.Error()
	}
}

// ParseQueryDate 解析查询参数中的日期（yyyy-MM-dd，UTC 零点）
func ParseQueryDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(domain.DateLayout, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected yyyy-MM-dd", s)
	}
	return &t, nil
}
