package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"mhealth-data/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// TimeSeriesAPI 时序服务客户端接口（用于测试和扩展）
type TimeSeriesAPI interface {
	// FetchIntraday 获取患者单日（00:00:00-23:59:59）逐分钟计步时序数据
	// date 格式 yyyy-MM-dd，metric 如 "steps"
	FetchIntraday(ctx context.Context, patientID, metric, date string) (*domain.IntradayTimeSeries, error)
}

// intradayRequest 时序服务请求体
type intradayRequest struct {
	PatientID   string `json:"patient_id"`
	Metric      string `json:"metric"`
	StartDate   string `json:"start_date"` // yyyy-MM-dd
	EndDate     string `json:"end_date"`   // yyyy-MM-dd
	StartTime   string `json:"start_time"` // HH:mm:ss
	EndTime     string `json:"end_time"`   // HH:mm:ss
	Granularity string `json:"granularity"`
}

// TimeSeriesClient 时序服务客户端
// 失败（含超时）映射为 domain.RemoteCallError；不做重试，重试策略由调用方决定
type TimeSeriesClient struct {
	httpClient *resty.Client
	cache      *redis.Client // 可选，单日时序响应缓存
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewTimeSeriesClient 创建时序服务客户端
// cache 可为 nil（禁用缓存）
func NewTimeSeriesClient(baseURL string, timeout time.Duration, cache *redis.Client, logger *zap.Logger) *TimeSeriesClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &TimeSeriesClient{
		httpClient: client,
		cache:      cache,
		cacheTTL:   5 * time.Minute,
		logger:     logger,
	}
}

var _ TimeSeriesAPI = (*TimeSeriesClient)(nil)

// FetchIntraday 获取患者单日逐分钟时序数据
func (c *TimeSeriesClient) FetchIntraday(ctx context.Context, patientID, metric, date string) (*domain.IntradayTimeSeries, error) {
	cacheKey := fmt.Sprintf("intraday:%s:%s:%s", patientID, metric, date)
	if cached := c.cacheGet(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	request := intradayRequest{
		PatientID:   patientID,
		Metric:      metric,
		StartDate:   date,
		EndDate:     date,
		StartTime:   "00:00:00",
		EndTime:     "23:59:59",
		Granularity: "1m",
	}

	c.logger.Debug("Calling time series service: intraday",
		zap.String("patient_id", patientID),
		zap.String("metric", metric),
		zap.String("date", date),
	)

	var series domain.IntradayTimeSeries
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&series).
		Post("/v1/timeseries/intraday")

	if err != nil {
		remErr := &domain.RemoteCallError{Message: "failed to call time series service", Err: err}
		if isTimeout(err) {
			remErr.Message = "time series rpc timed out"
			remErr.Timeout = true
		}
		c.logger.Error("Time series service call failed",
			zap.Error(err),
			zap.Bool("timeout", remErr.Timeout),
		)
		return nil, remErr
	}
	if resp.IsError() {
		c.logger.Error("Time series service returned error status",
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, &domain.RemoteCallError{
			Message: fmt.Sprintf("time series service returned status %d", resp.StatusCode()),
		}
	}

	c.cacheSet(ctx, cacheKey, &series)
	return &series, nil
}

// cacheGet 读缓存；缓存故障不影响主流程
func (c *TimeSeriesClient) cacheGet(ctx context.Context, key string) *domain.IntradayTimeSeries {
	if c.cache == nil {
		return nil
	}
	raw, err := c.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Intraday cache read failed", zap.Error(err))
		}
		return nil
	}
	var series domain.IntradayTimeSeries
	if err := json.Unmarshal(raw, &series); err != nil {
		c.logger.Warn("Intraday cache entry corrupted", zap.String("key", key), zap.Error(err))
		return nil
	}
	return &series
}

// cacheSet 写缓存；缓存故障不影响主流程
func (c *TimeSeriesClient) cacheSet(ctx context.Context, key string, series *domain.IntradayTimeSeries) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(series)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.cacheTTL).Err(); err != nil {
		c.logger.Warn("Intraday cache write failed", zap.Error(err))
	}
}

// isTimeout 判断错误是否为超时（context 截止或网络超时）
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
