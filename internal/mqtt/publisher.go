package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"mhealth-data/internal/domain"

	"go.uber.org/zap"
)

// 事件名称
const (
	EventSleepSaved   = "SleepSaveEvent"
	EventSleepDeleted = "SleepDeleteEvent"
)

// sleepEvent 总线消息体
type sleepEvent struct {
	EventName string              `json:"event_name"`
	Timestamp string              `json:"timestamp"` // ISO 8601, UTC
	Sleep     *domain.SleepRecord `json:"sleep,omitempty"`
	PatientID string              `json:"patient_id,omitempty"`
	SleepID   string              `json:"sleep_id,omitempty"`
}

// SleepEventPublisher 睡眠记录事件发布者
// 记录保存/删除后向总线发布事件供其他服务消费；发布失败由调用方记日志，不阻塞 API
type SleepEventPublisher struct {
	client *Client
	topic  string
	logger *zap.Logger
}

// NewSleepEventPublisher 创建事件发布者
func NewSleepEventPublisher(client *Client, topic string, logger *zap.Logger) *SleepEventPublisher {
	return &SleepEventPublisher{
		client: client,
		topic:  topic,
		logger: logger,
	}
}

// PublishSleepSaved 发布记录保存事件
func (p *SleepEventPublisher) PublishSleepSaved(rec *domain.SleepRecord) error {
	return p.publish(sleepEvent{
		EventName: EventSleepSaved,
		Timestamp: time.Now().UTC().Format(domain.TimestampLayout),
		Sleep:     rec,
	})
}

// PublishSleepDeleted 发布记录删除事件
func (p *SleepEventPublisher) PublishSleepDeleted(patientID, sleepID string) error {
	return p.publish(sleepEvent{
		EventName: EventSleepDeleted,
		Timestamp: time.Now().UTC().Format(domain.TimestampLayout),
		PatientID: patientID,
		SleepID:   sleepID,
	})
}

func (p *SleepEventPublisher) publish(event sleepEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sleep event: %w", err)
	}
	if err := p.client.Publish(p.topic, 1, false, payload); err != nil {
		return err
	}
	p.logger.Debug("Sleep event published",
		zap.String("event_name", event.EventName),
		zap.String("topic", p.topic),
	)
	return nil
}
