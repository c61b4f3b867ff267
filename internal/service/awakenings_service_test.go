package service

import (
	"context"
	"testing"

	"mhealth-data/internal/domain"
	"mhealth-data/internal/repository"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPatientID = "00000000-0000-0000-0000-000000000201"

func int64Ptr(v int64) *int64 {
	return &v
}

// fakeTimeSeries 按日期返回预置采样的时序客户端替身，记录每次拉取的日期
type fakeTimeSeries struct {
	byDate map[string][]domain.IntradaySample
	calls  []string
	err    error
}

func (f *fakeTimeSeries) FetchIntraday(_ context.Context, _, _, date string) (*domain.IntradayTimeSeries, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, date)
	return &domain.IntradayTimeSeries{DataSet: f.byDate[date]}, nil
}

// newAwakeningsFixture 构造内存 Repository + 替身时序客户端的服务实例
func newAwakeningsFixture(ts *fakeTimeSeries) (AwakeningsService, *repository.MemorySleepRepository) {
	repo := repository.NewMemorySleepRepository()
	svc := NewAwakeningsService(repo, ts, zap.NewNop())
	return svc, repo
}

// sleepRecordWithSegments 构造一条已通过校验的 stages 记录
func sleepRecordWithSegments(id string, segments []domain.StageSegment) *domain.SleepRecord {
	return &domain.SleepRecord{
		ID:        id,
		StartTime: "2024-08-20T00:00:00Z",
		EndTime:   "2024-08-21T00:00:00Z",
		Duration:  int64Ptr(24 * 60 * 60 * 1000),
		PatientID: testPatientID,
		Type:      domain.SleepTypeStages,
		Pattern:   &domain.SleepPattern{DataSet: segments},
	}
}

func mustCreate(t *testing.T, repo *repository.MemorySleepRepository, rec *domain.SleepRecord) {
	t.Helper()
	_, err := repo.Create(context.Background(), rec)
	require.NoError(t, err)
}

func TestInferAwakenings_ConfirmsAtThreshold(t *testing.T) {
	ts := &fakeTimeSeries{byDate: map[string][]domain.IntradaySample{
		"2024-08-20": {{Time: "01:00:00", Value: 7}},
	}}
	svc, repo := newAwakeningsFixture(ts)

	rec := sleepRecordWithSegments("rec-1", []domain.StageSegment{
		{StartTime: "2024-08-20T01:00:00Z", Name: "awake", Duration: int64Ptr(420000)},
	})
	mustCreate(t, repo, rec)

	result, err := svc.InferAwakenings(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, result.Awakenings, 1)
	require.Equal(t, domain.Awakening{
		StartTime: "01:00:00",
		EndTime:   "01:07:00",
		Duration:  420000,
		Steps:     7,
	}, result.Awakenings[0])

	// 已持久化
	stored, err := repo.GetByID(context.Background(), testPatientID, "rec-1")
	require.NoError(t, err)
	require.Len(t, stored.Awakenings, 1)
}

func TestInferAwakenings_DiscardsBelowThreshold(t *testing.T) {
	ts := &fakeTimeSeries{byDate: map[string][]domain.IntradaySample{
		"2024-08-20": {{Time: "01:00:00", Value: 6}},
	}}
	svc, repo := newAwakeningsFixture(ts)

	rec := sleepRecordWithSegments("rec-1", []domain.StageSegment{
		{StartTime: "2024-08-20T01:00:00Z", Name: "awake", Duration: int64Ptr(420000)},
	})
	mustCreate(t, repo, rec)

	result, err := svc.InferAwakenings(context.Background(), rec)
	require.NoError(t, err)
	// 计步不足：静默丢弃，不是错误
	require.Empty(t, result.Awakenings)
}

func TestInferAwakenings_SumsSamplesInInclusiveRange(t *testing.T) {
	ts := &fakeTimeSeries{byDate: map[string][]domain.IntradaySample{
		"2024-08-20": {
			{Time: "00:59:00", Value: 100}, // 区间外
			{Time: "01:00:00", Value: 3},
			{Time: "01:03:00", Value: 2},
			{Time: "01:07:00", Value: 2}, // 右端点含入
			{Time: "01:08:00", Value: 100},
		},
	}}
	svc, repo := newAwakeningsFixture(ts)

	rec := sleepRecordWithSegments("rec-1", []domain.StageSegment{
		{StartTime: "2024-08-20T01:00:00Z", Name: "awake", Duration: int64Ptr(420000)},
	})
	mustCreate(t, repo, rec)

	result, err := svc.InferAwakenings(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, result.Awakenings, 1)
	require.Equal(t, 7, result.Awakenings[0].Steps)
}

func TestInferAwakenings_NightWindowGating(t *testing.T) {
	samples := map[string][]domain.IntradaySample{
		"2024-08-20": {{Time: "09:00:00", Value: 50}},
	}
	segments := []domain.StageSegment{
		{StartTime: "2024-08-20T09:00:00Z", Name: "awake", Duration: int64Ptr(420000)},
	}

	// 时钟 9 点不在夜间时段：夜间限定变体跳过（不拉取、不写存储）
	ts := &fakeTimeSeries{byDate: samples}
	svc, repo := newAwakeningsFixture(ts)
	rec := sleepRecordWithSegments("rec-1", segments)
	mustCreate(t, repo, rec)

	result, err := svc.InferAwakenings(context.Background(), rec)
	require.NoError(t, err)
	require.Empty(t, result.Awakenings)
	require.Empty(t, ts.calls)

	// 不限时段变体确认同一片段
	ts2 := &fakeTimeSeries{byDate: samples}
	svc2, repo2 := newAwakeningsFixture(ts2)
	rec2 := sleepRecordWithSegments("rec-2", segments)
	mustCreate(t, repo2, rec2)

	result2, err := svc2.InferNightAwakenings(context.Background(), rec2)
	require.NoError(t, err)
	require.Len(t, result2.NightAwakenings, 1)
	require.Equal(t, 50, result2.NightAwakenings[0].Steps)
}

func TestInferAwakenings_SkipsShortAndNonAwakeSegments(t *testing.T) {
	ts := &fakeTimeSeries{byDate: map[string][]domain.IntradaySample{}}
	svc, repo := newAwakeningsFixture(ts)

	rec := sleepRecordWithSegments("rec-1", []domain.StageSegment{
		{StartTime: "2024-08-20T01:00:00Z", Name: "deep", Duration: int64Ptr(3600000)},
		{StartTime: "2024-08-20T02:00:00Z", Name: "awake", Duration: int64Ptr(419999)}, // 不足 7 分钟
	})
	mustCreate(t, repo, rec)

	result, err := svc.InferAwakenings(context.Background(), rec)
	require.NoError(t, err)
	require.Empty(t, result.Awakenings)
	require.Empty(t, ts.calls)
}

func TestInferNightAwakenings_RefetchesPerDistinctDay(t *testing.T) {
	ts := &fakeTimeSeries{byDate: map[string][]domain.IntradaySample{
		"2024-08-20": {{Time: "23:00:00", Value: 10}},
		"2024-08-21": {{Time: "01:00:00", Value: 10}},
	}}
	svc, repo := newAwakeningsFixture(ts)

	rec := sleepRecordWithSegments("rec-1", []domain.StageSegment{
		{StartTime: "2024-08-20T23:00:00Z", Name: "awake", Duration: int64Ptr(420000)},
		{StartTime: "2024-08-21T01:00:00Z", Name: "awake", Duration: int64Ptr(420000)},
	})
	mustCreate(t, repo, rec)

	result, err := svc.InferNightAwakenings(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, result.NightAwakenings, 2)
	// 每个不同日历日只拉取一次，而不是每个候选一次
	require.Equal(t, []string{"2024-08-20", "2024-08-21"}, ts.calls)
}

func TestInferNightAwakenings_ReplacesWholesale(t *testing.T) {
	ts := &fakeTimeSeries{byDate: map[string][]domain.IntradaySample{
		"2024-08-20": {{Time: "03:00:00", Value: 9}},
	}}
	svc, repo := newAwakeningsFixture(ts)

	rec := sleepRecordWithSegments("rec-1", []domain.StageSegment{
		{StartTime: "2024-08-20T03:00:00Z", Name: "awake", Duration: int64Ptr(420000)},
	})
	rec.NightAwakenings = []domain.NightAwakening{
		{StartTime: "23:00:00", EndTime: "23:10:00", Steps: 42},
	}
	mustCreate(t, repo, rec)

	result, err := svc.InferNightAwakenings(context.Background(), rec)
	require.NoError(t, err)
	// 整体替换，不追加
	require.Len(t, result.NightAwakenings, 1)
	require.Equal(t, "03:00:00", result.NightAwakenings[0].StartTime)
}

func TestInferNightAwakenings_EmptyPatternYieldsEmptyResult(t *testing.T) {
	ts := &fakeTimeSeries{byDate: map[string][]domain.IntradaySample{}}
	svc, repo := newAwakeningsFixture(ts)

	rec := sleepRecordWithSegments("rec-1", []domain.StageSegment{
		{StartTime: "2024-08-20T01:00:00Z", Name: "light", Duration: int64Ptr(3600000)},
	})
	mustCreate(t, repo, rec)

	// 不限时段变体总是尝试补全：无候选得到空事件列表并写回
	result, err := svc.InferNightAwakenings(context.Background(), rec)
	require.NoError(t, err)
	require.NotNil(t, result.NightAwakenings)
	require.Empty(t, result.NightAwakenings)
	require.Empty(t, ts.calls)
}

func TestInferNightAwakenings_StoreNotFoundRevertsEnrichment(t *testing.T) {
	ts := &fakeTimeSeries{byDate: map[string][]domain.IntradaySample{
		"2024-08-20": {{Time: "01:00:00", Value: 9}},
	}}
	svc, _ := newAwakeningsFixture(ts)

	// 未持久化的记录：Update 返回 nil，不视为错误，补全字段回退
	rec := sleepRecordWithSegments("ghost", []domain.StageSegment{
		{StartTime: "2024-08-20T01:00:00Z", Name: "awake", Duration: int64Ptr(420000)},
	})

	result, err := svc.InferNightAwakenings(context.Background(), rec)
	require.NoError(t, err)
	require.Nil(t, result.NightAwakenings)
}

func TestInferAwakenings_PropagatesRemoteError(t *testing.T) {
	remoteErr := &domain.RemoteCallError{Message: "time series rpc timed out", Timeout: true}
	ts := &fakeTimeSeries{err: remoteErr}
	svc, repo := newAwakeningsFixture(ts)

	rec := sleepRecordWithSegments("rec-1", []domain.StageSegment{
		{StartTime: "2024-08-20T01:00:00Z", Name: "awake", Duration: int64Ptr(420000)},
	})
	mustCreate(t, repo, rec)

	_, err := svc.InferAwakenings(context.Background(), rec)
	require.ErrorAs(t, err, &remoteErr)

	_, err = svc.InferNightAwakenings(context.Background(), rec)
	require.ErrorAs(t, err, &remoteErr)
}
