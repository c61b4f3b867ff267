package domain

import "time"

// SleepType 睡眠分期类型
// classic: 三段式（awake/asleep/restless）
// stages: 四段式（deep/light/rem/awake）
type SleepType string

const (
	SleepTypeClassic SleepType = "classic"
	SleepTypeStages  SleepType = "stages"
)

// classic 分期允许的阶段名称
var classicStageNames = []string{"awake", "asleep", "restless"}

// stages 分期允许的阶段名称
var stagesStageNames = []string{"deep", "light", "rem", "awake"}

// Valid 判断分期类型是否为已知类型
func (t SleepType) Valid() bool {
	return t == SleepTypeClassic || t == SleepTypeStages
}

// StageNames 返回该分期类型允许的阶段名称集合
// 阶段名称的合法性由记录的 type 字段决定（跨字段约束），在校验时解析一次
func (t SleepType) StageNames() []string {
	switch t {
	case SleepTypeClassic:
		return classicStageNames
	case SleepTypeStages:
		return stagesStageNames
	default:
		return nil
	}
}

// ValidStage 判断阶段名称是否属于该分期类型
func (t SleepType) ValidStage(name string) bool {
	for _, n := range t.StageNames() {
		if n == name {
			return true
		}
	}
	return false
}

// TimestampLayout 睡眠记录时间戳格式（ISO 8601 / RFC 3339）
const TimestampLayout = time.RFC3339

// ClockLayout 不含日期的时钟时间格式（HH:mm:ss）
const ClockLayout = "15:04:05"

// DateLayout 日历日期格式（yyyy-MM-dd）
const DateLayout = "2006-01-02"

// ParseTimestamp 解析 ISO 8601 时间戳
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// SleepRecord 睡眠记录领域模型
// 生命周期：外部提交（不可信输入）→ 校验 → 持久化 → 异步补全觉醒事件（原地更新后重新持久化）
// 唯一性约束：(patient_id, start_time)，由 Repository 层兜底
type SleepRecord struct {
	ID        string `json:"id,omitempty"`
	StartTime string `json:"start_time,omitempty"` // ISO 8601
	EndTime   string `json:"end_time,omitempty"`   // ISO 8601
	Duration  *int64 `json:"duration,omitempty"`   // 毫秒，必须等于 end_time - start_time
	PatientID string `json:"patient_id,omitempty"` // UUID

	Type    SleepType     `json:"type,omitempty"`
	Pattern *SleepPattern `json:"pattern,omitempty"`

	// 推断产物，调用方不可提交；每次重新计算时整体替换
	Awakenings      []Awakening      `json:"awakenings,omitempty"`
	NightAwakenings []NightAwakening `json:"night_awakenings,omitempty"`
}

// SleepPattern 睡眠分期数据集合
type SleepPattern struct {
	DataSet []StageSegment `json:"data_set"`
	Summary PatternSummary `json:"summary,omitempty"`
}

// StageSegment 睡眠阶段片段（按 start_time 升序）
type StageSegment struct {
	StartTime string `json:"start_time,omitempty"` // ISO 8601
	Name      string `json:"name,omitempty"`
	Duration  *int64 `json:"duration,omitempty"` // 毫秒，> 0
}

// PatternSummary 各阶段汇总（阶段名称 -> 次数/总时长）
type PatternSummary map[string]StageSummaryItem

// StageSummaryItem 单个阶段的汇总项
type StageSummaryItem struct {
	Count    int   `json:"count"`
	Duration int64 `json:"duration"` // 毫秒
}

// ComputeSummary 根据 data_set 重新计算汇总（持久化前调用）
func (p *SleepPattern) ComputeSummary() {
	summary := PatternSummary{}
	for _, seg := range p.DataSet {
		item := summary[seg.Name]
		item.Count++
		if seg.Duration != nil {
			item.Duration += *seg.Duration
		}
		summary[seg.Name] = item
	}
	p.Summary = summary
}

// Awakening 夜间时段限定的觉醒事件（inferAwakenings 产物）
type Awakening struct {
	StartTime string `json:"start_time"` // HH:mm:ss
	EndTime   string `json:"end_time"`   // HH:mm:ss
	Duration  int64  `json:"duration"`   // 毫秒
	Steps     int    `json:"steps"`
}

// NightAwakening 不限时段的觉醒事件（inferNightAwakenings 产物）
type NightAwakening struct {
	StartTime string `json:"start_time"` // HH:mm:ss
	EndTime   string `json:"end_time"`   // HH:mm:ss
	Steps     int    `json:"steps"`
}

// Clone 深拷贝睡眠记录（批量提交时保留原始输入用于错误报告）
func (r *SleepRecord) Clone() *SleepRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Duration != nil {
		d := *r.Duration
		clone.Duration = &d
	}
	if r.Pattern != nil {
		p := SleepPattern{}
		if r.Pattern.DataSet != nil {
			p.DataSet = make([]StageSegment, len(r.Pattern.DataSet))
			for i, seg := range r.Pattern.DataSet {
				p.DataSet[i] = seg
				if seg.Duration != nil {
					d := *seg.Duration
					p.DataSet[i].Duration = &d
				}
			}
		}
		if r.Pattern.Summary != nil {
			p.Summary = PatternSummary{}
			for k, v := range r.Pattern.Summary {
				p.Summary[k] = v
			}
		}
		clone.Pattern = &p
	}
	// 空切片与 nil 有别：空表示"已推断、无事件"，nil 表示"未推断"
	if r.Awakenings != nil {
		clone.Awakenings = make([]Awakening, len(r.Awakenings))
		copy(clone.Awakenings, r.Awakenings)
	}
	if r.NightAwakenings != nil {
		clone.NightAwakenings = make([]NightAwakening, len(r.NightAwakenings))
		copy(clone.NightAwakenings, r.NightAwakenings)
	}
	return &clone
}
