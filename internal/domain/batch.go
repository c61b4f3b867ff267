package domain

// 批量提交结果项状态码（与 HTTP 状态码对齐）
const (
	BatchItemCreated       = 201
	BatchItemBadRequest    = 400
	BatchItemConflict      = 409
	BatchItemInternalError = 500
)

// BatchSuccess 批量提交成功项
type BatchSuccess struct {
	Code int          `json:"code"`
	Item *SleepRecord `json:"item"`
}

// BatchError 批量提交失败项
// Item 为调用方提交的原始记录（未持久化、未补全），便于调用方重试
type BatchError struct {
	Code        int          `json:"code"`
	Message     string       `json:"message"`
	Description string       `json:"description,omitempty"`
	Item        *SleepRecord `json:"item,omitempty"`
}

// BatchOutcome 批量提交聚合结果
// 可变累加器：边界层可继续追加在到达 Service 之前就解析失败的条目
type BatchOutcome struct {
	Success []BatchSuccess `json:"success"`
	Error   []BatchError   `json:"error"`
}

// NewBatchOutcome 创建空的批量结果（success/error 序列化为空数组而非 null）
func NewBatchOutcome() *BatchOutcome {
	return &BatchOutcome{
		Success: []BatchSuccess{},
		Error:   []BatchError{},
	}
}

// AppendSuccess 追加成功项
func (o *BatchOutcome) AppendSuccess(code int, item *SleepRecord) {
	o.Success = append(o.Success, BatchSuccess{Code: code, Item: item})
}

// AppendError 追加失败项
func (o *BatchOutcome) AppendError(code int, message, description string, item *SleepRecord) {
	o.Error = append(o.Error, BatchError{
		Code:        code,
		Message:     message,
		Description: description,
		Item:        item,
	})
}
