package domain

// IntradayTimeSeries 单个患者单日的逐分钟计步时序数据（来自时序服务）
type IntradayTimeSeries struct {
	DataSet []IntradaySample `json:"data_set"`
}

// IntradaySample 单个时序采样点
type IntradaySample struct {
	Time  string `json:"time"` // HH:mm:ss
	Value int    `json:"value"`
}

// SumRange 统计时钟区间 [start, end]（含两端，HH:mm:ss）内采样值之和
// 固定宽度的 HH:mm:ss 字符串可直接按字典序比较
func (ts *IntradayTimeSeries) SumRange(start, end string) int {
	sum := 0
	for _, s := range ts.DataSet {
		if s.Time >= start && s.Time <= end {
			sum += s.Value
		}
	}
	return sum
}
