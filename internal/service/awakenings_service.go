package service

import (
	"context"
	"time"

	"mhealth-data/internal/domain"
	"mhealth-data/internal/repository"

	"go.uber.org/zap"
)

const (
	// awakeStageName 作为觉醒候选的阶段名称
	awakeStageName = "awake"

	// minAwakeDuration 候选片段最小时长（7 分钟，毫秒）
	minAwakeDuration = 7 * 60 * 1000

	// minConfirmSteps 确认觉醒事件所需的最小计步数
	minConfirmSteps = 7

	// 夜间时段：[18:00, 24:00) ∪ [0:00, 6:00)
	nightStartHour = 18
	nightEndHour   = 6

	// stepsMetric 时序服务计步指标名称
	stepsMetric = "steps"
)

// AwakeningsService 觉醒事件推断服务接口
// 将睡眠记录中的 awake 片段与独立存储的计步时序数据相关联，确认为觉醒事件。
// 两个入口共用同一算法骨架，仅过滤条件和输出字段不同；
// 两者都向调用方传播时序服务错误，吞错策略由创建路径的调用点单独承担。
type AwakeningsService interface {
	// InferAwakenings 推断夜间时段限定的觉醒事件（按需调用）
	// 候选条件：name=awake、时长 >= 7 分钟、起始时钟小时落在夜间时段。
	// 无候选时不写存储，原样返回记录。
	InferAwakenings(ctx context.Context, rec *domain.SleepRecord) (*domain.SleepRecord, error)

	// InferNightAwakenings 推断不限时段的觉醒事件（创建后自动调用）
	// 候选条件：name=awake、时长 >= 7 分钟。
	// 总是尝试补全：无候选时得到空事件列表并整体替换。
	InferNightAwakenings(ctx context.Context, rec *domain.SleepRecord) (*domain.SleepRecord, error)
}

// awakeningsService 实现
type awakeningsService struct {
	sleepRepo  repository.SleepRepository
	timeSeries TimeSeriesAPI
	logger     *zap.Logger
}

// NewAwakeningsService 创建 AwakeningsService 实例
func NewAwakeningsService(sleepRepo repository.SleepRepository, timeSeries TimeSeriesAPI, logger *zap.Logger) AwakeningsService {
	return &awakeningsService{
		sleepRepo:  sleepRepo,
		timeSeries: timeSeries,
		logger:     logger,
	}
}

// candidate 觉醒候选片段（起止时间均已换算为 UTC）
type candidate struct {
	start time.Time
	end   time.Time
}

// InferAwakenings 推断夜间时段限定的觉醒事件
func (s *awakeningsService) InferAwakenings(ctx context.Context, rec *domain.SleepRecord) (*domain.SleepRecord, error) {
	candidates := collectCandidates(rec, true)
	if len(candidates) == 0 {
		// 无候选：不写存储，原样返回
		return rec, nil
	}

	events, err := s.correlate(ctx, rec.PatientID, candidates)
	if err != nil {
		return nil, err
	}

	awakenings := make([]domain.Awakening, 0, len(events))
	for _, e := range events {
		awakenings = append(awakenings, domain.Awakening{
			StartTime: e.startClock,
			EndTime:   e.endClock,
			Duration:  e.duration,
			Steps:     e.steps,
		})
	}

	prev := rec.Awakenings
	rec.Awakenings = awakenings // 整体替换，不增量合并
	updated, err := s.sleepRepo.Update(ctx, rec)
	if err != nil {
		rec.Awakenings = prev
		return nil, err
	}
	if updated == nil {
		// 存储侧记录不存在：回退内存中的补全字段，不视为错误
		rec.Awakenings = prev
		s.logger.Warn("Sleep record vanished before awakenings update",
			zap.String("sleep_id", rec.ID),
			zap.String("patient_id", rec.PatientID),
		)
		return rec, nil
	}

	s.logger.Info("Awakenings inferred",
		zap.String("sleep_id", rec.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("confirmed", len(awakenings)),
	)
	return updated, nil
}

// InferNightAwakenings 推断不限时段的觉醒事件
func (s *awakeningsService) InferNightAwakenings(ctx context.Context, rec *domain.SleepRecord) (*domain.SleepRecord, error) {
	candidates := collectCandidates(rec, false)

	events, err := s.correlate(ctx, rec.PatientID, candidates)
	if err != nil {
		return nil, err
	}

	nightAwakenings := make([]domain.NightAwakening, 0, len(events))
	for _, e := range events {
		nightAwakenings = append(nightAwakenings, domain.NightAwakening{
			StartTime: e.startClock,
			EndTime:   e.endClock,
			Steps:     e.steps,
		})
	}

	prev := rec.NightAwakenings
	rec.NightAwakenings = nightAwakenings
	updated, err := s.sleepRepo.Update(ctx, rec)
	if err != nil {
		rec.NightAwakenings = prev
		return nil, err
	}
	if updated == nil {
		rec.NightAwakenings = prev
		s.logger.Warn("Sleep record vanished before night awakenings update",
			zap.String("sleep_id", rec.ID),
			zap.String("patient_id", rec.PatientID),
		)
		return rec, nil
	}

	s.logger.Info("Night awakenings inferred",
		zap.String("sleep_id", rec.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("confirmed", len(nightAwakenings)),
	)
	return updated, nil
}

// confirmedEvent 经计步确认的觉醒事件
type confirmedEvent struct {
	startClock string // HH:mm:ss
	endClock   string // HH:mm:ss
	duration   int64  // 毫秒
	steps      int
}

// correlate 将候选片段与计步时序数据相关联
// 按日历日（UTC）缓存时序数据：候选跨日时才重新拉取，每个不同日期只拉取一次。
// 计步总和 >= 阈值的候选确认为事件，其余静默丢弃。
// 时序服务错误（含超时）原样向上传播。
func (s *awakeningsService) correlate(ctx context.Context, patientID string, candidates []candidate) ([]confirmedEvent, error) {
	var (
		events     []confirmedEvent
		series     *domain.IntradayTimeSeries
		cachedDate string
	)

	for _, c := range candidates {
		date := c.start.Format(domain.DateLayout)
		if series == nil || date != cachedDate {
			ts, err := s.timeSeries.FetchIntraday(ctx, patientID, stepsMetric, date)
			if err != nil {
				return nil, err
			}
			series = ts
			cachedDate = date
		}

		startClock := c.start.Format(domain.ClockLayout)
		endClock := c.end.Format(domain.ClockLayout)
		steps := series.SumRange(startClock, endClock)
		if steps < minConfirmSteps {
			continue
		}
		events = append(events, confirmedEvent{
			startClock: startClock,
			endClock:   endClock,
			duration:   c.end.Sub(c.start).Milliseconds(),
			steps:      steps,
		})
	}

	return events, nil
}

// collectCandidates 按过滤条件收集候选片段，保持时间顺序
// 所有日历日/时钟计算统一使用 UTC，避免依赖进程本地时区
func collectCandidates(rec *domain.SleepRecord, nightOnly bool) []candidate {
	if rec.Pattern == nil {
		return nil
	}

	var candidates []candidate
	for _, seg := range rec.Pattern.DataSet {
		if seg.Name != awakeStageName || seg.Duration == nil || *seg.Duration < minAwakeDuration {
			continue
		}
		start, err := domain.ParseTimestamp(seg.StartTime)
		if err != nil {
			continue // 已入库记录均通过校验，不应发生
		}
		start = start.UTC()
		if nightOnly && !inNightWindow(start.Hour()) {
			continue
		}
		candidates = append(candidates, candidate{
			start: start,
			end:   start.Add(time.Duration(*seg.Duration) * time.Millisecond),
		})
	}
	return candidates
}

// inNightWindow 判断时钟小时是否落在夜间时段 [18:00, 24:00) ∪ [0:00, 6:00)
func inNightWindow(hour int) bool {
	return hour >= nightStartHour || hour < nightEndHour
}
