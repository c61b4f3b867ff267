package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 校验策略：
//   - 缺失字段（required）跨所有检查项聚合，最后一次性报告
//   - 字段值非法（invalid）遇到第一个立即返回，后续检查不再执行
// 嵌套校验器的缺失字段路径由上层加前缀（如 data_set 的 start_time -> pattern.data_set.start_time）

// ValidateSleepRecord 校验睡眠记录及其嵌套分期数据
func ValidateSleepRecord(rec *SleepRecord) error {
	missing, err := validateActivityFields(rec.StartTime, rec.EndTime, rec.Duration, rec.PatientID)
	if err != nil {
		return err
	}

	typeKnown := false
	if rec.Type == "" {
		missing = append(missing, "type")
	} else if !rec.Type.Valid() {
		return NewInvalidFieldError(
			fmt.Sprintf("The type of sleep provided %q is not supported...", string(rec.Type)),
			"The allowed Sleep Pattern types are: classic, stages.",
		)
	} else {
		typeKnown = true
	}

	if rec.Pattern == nil {
		missing = append(missing, "pattern")
	} else if len(rec.Pattern.DataSet) == 0 {
		missing = append(missing, "pattern.data_set")
	} else {
		segMissing, err := validateDataSet(rec.Pattern.DataSet, rec.Type, typeKnown)
		if err != nil {
			return err
		}
		for _, f := range segMissing {
			missing = append(missing, "pattern.data_set."+f)
		}
	}

	if len(missing) > 0 {
		return NewRequiredFieldsError(missing)
	}
	return nil
}

// validateActivityFields 通用活动记录检查（其他记录类型复用）
// 返回缺失字段列表；字段值非法时立即返回错误
func validateActivityFields(startTime, endTime string, duration *int64, patientID string) ([]string, error) {
	var missing []string

	start, ok, err := checkTimestamp(startTime)
	if err != nil {
		return nil, err
	}
	if !ok {
		missing = append(missing, "start_time")
	}

	end, endOK, err := checkTimestamp(endTime)
	if err != nil {
		return nil, err
	}
	if !endOK {
		missing = append(missing, "end_time")
	}

	if duration == nil {
		missing = append(missing, "duration")
	} else if *duration < 0 {
		return nil, NewInvalidFieldError(
			"Duration field is invalid...",
			"The value provided has a negative value!",
		)
	}

	// 三个字段都存在时，重新计算 end_time - start_time 并要求与 duration 严格相等
	if ok && endOK && duration != nil {
		if end.Before(start) {
			return nil, NewInvalidFieldError(
				"Date field is invalid...",
				"The end_time parameter can not contain an older date than that the start_time parameter!",
			)
		}
		if end.Sub(start).Milliseconds() != *duration {
			return nil, NewInvalidFieldError(
				"Duration field is invalid...",
				"duration value does not match values passed in start_time and end_time parameters!",
			)
		}
	}

	if patientID == "" {
		missing = append(missing, "patient_id")
	} else if _, err := uuid.Parse(patientID); err != nil {
		return nil, NewInvalidFieldError(
			fmt.Sprintf("Parameter {%s} is not in valid format!", patientID),
			"A 36-character UUID in the format xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx is expected.",
		)
	}

	return missing, nil
}

// validateDataSet 校验分期片段集合
// 缺失字段按字段名去重返回（不带片段下标），由上层加 pattern.data_set. 前缀
func validateDataSet(dataSet []StageSegment, sleepType SleepType, typeKnown bool) ([]string, error) {
	seen := map[string]bool{}
	var missing []string
	addMissing := func(field string) {
		if !seen[field] {
			seen[field] = true
			missing = append(missing, field)
		}
	}

	for _, seg := range dataSet {
		_, ok, err := checkTimestamp(seg.StartTime)
		if err != nil {
			return nil, err
		}
		if !ok {
			addMissing("start_time")
		}

		if seg.Name == "" {
			addMissing("name")
		} else if typeKnown && !sleepType.ValidStage(seg.Name) {
			return nil, NewInvalidFieldError(
				fmt.Sprintf("The sleep pattern name provided %q is not supported...", seg.Name),
				fmt.Sprintf("The names of the allowed data_set patterns are: %s.",
					strings.Join(sleepType.StageNames(), ", ")),
			)
		}

		if seg.Duration == nil {
			addMissing("duration")
		} else if *seg.Duration <= 0 {
			return nil, NewInvalidFieldError(
				"Duration field is invalid...",
				"The value provided must be greater than zero!",
			)
		}
	}

	return missing, nil
}

// checkTimestamp 检查时间戳字段：缺失返回 ok=false，格式非法返回错误（描述中带上原始值）
func checkTimestamp(s string) (time.Time, bool, error) {
	if s == "" {
		return time.Time{}, false, nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, false, NewInvalidFieldError(
			fmt.Sprintf("Datetime: %s, is not in valid ISO 8601 format.", s),
			"Date must be in the format: yyyy-MM-dd'T'HH:mm:ssZ",
		)
	}
	return t, true, nil
}
