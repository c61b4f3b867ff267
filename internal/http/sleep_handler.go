package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"mhealth-data/internal/domain"
	"mhealth-data/internal/repository"
	"mhealth-data/internal/service"

	"go.uber.org/zap"
)

// maxBodyBytes 请求体大小上限
const maxBodyBytes = 4 << 20

// SleepHandler 睡眠记录 Handler
type SleepHandler struct {
	sleepService service.SleepService
	logger       *zap.Logger
}

// NewSleepHandler 创建 SleepHandler
func NewSleepHandler(sleepService service.SleepService, logger *zap.Logger) *SleepHandler {
	return &SleepHandler{
		sleepService: sleepService,
		logger:       logger,
	}
}

// AddSleep 提交睡眠记录（单条对象或数组）
// POST /v1/patients/{patient_id}/sleep
// 数组提交返回 207 聚合结果；在到达 Service 之前就解析失败的条目由本层追加到聚合结果中
func (h *SleepHandler) AddSleep(w http.ResponseWriter, r *http.Request, patientID string) {
	body, err := readBody(r, maxBodyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unable to read request body.", err.Error())
		return
	}

	if isJSONArray(body) {
		h.addSleepBatch(w, r, patientID, body)
		return
	}

	var rec domain.SleepRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "Request body is not valid JSON.", err.Error())
		return
	}
	rec.PatientID = patientID

	created, err := h.sleepService.AddSleep(r.Context(), &rec)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// addSleepBatch 数组提交路径
func (h *SleepHandler) addSleepBatch(w http.ResponseWriter, r *http.Request, patientID string, body []byte) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		writeError(w, http.StatusBadRequest, "Request body is not valid JSON.", err.Error())
		return
	}

	// 逐条结构解析；解析失败的条目不进入 Service，稍后追加到聚合结果
	type decodeFailure struct {
		description string
	}
	var recs []*domain.SleepRecord
	var failures []decodeFailure
	for _, item := range items {
		var rec domain.SleepRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			failures = append(failures, decodeFailure{description: err.Error()})
			continue
		}
		rec.PatientID = patientID
		recs = append(recs, &rec)
	}

	outcome := h.sleepService.AddSleepBatch(r.Context(), recs)
	for _, f := range failures {
		outcome.AppendError(domain.BatchItemBadRequest, "Request body is not valid JSON.", f.description, nil)
	}

	writeJSON(w, http.StatusMultiStatus, outcome)
}

// ListSleeps 查询睡眠记录列表
// GET /v1/patients/{patient_id}/sleep?start_date=yyyy-MM-dd&end_date=yyyy-MM-dd&page=1&size=100&sort=desc
func (h *SleepHandler) ListSleeps(w http.ResponseWriter, r *http.Request, patientID string) {
	q, err := sleepQueryFromRequest(r, patientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query parameter.", err.Error())
		return
	}

	records, total, err := h.sleepService.ListSleeps(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	writeJSON(w, http.StatusOK, records)
}

// GetSleep 查询单条记录
// GET /v1/patients/{patient_id}/sleep/{sleep_id}
func (h *SleepHandler) GetSleep(w http.ResponseWriter, r *http.Request, patientID, sleepID string) {
	rec, err := h.sleepService.GetSleep(r.Context(), patientID, sleepID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Sleep record not found!", "")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteSleep 删除记录
// DELETE /v1/patients/{patient_id}/sleep/{sleep_id}
func (h *SleepHandler) DeleteSleep(w http.ResponseWriter, r *http.Request, patientID, sleepID string) {
	deleted, err := h.sleepService.DeleteSleep(r.Context(), patientID, sleepID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Sleep record not found!", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunAwakenings 按需触发夜间时段限定的觉醒事件推断
// POST /v1/patients/{patient_id}/sleep/{sleep_id}/awakenings
// 时序服务失败（含超时）向调用方报告，不静默吞掉
func (h *SleepHandler) RunAwakenings(w http.ResponseWriter, r *http.Request, patientID, sleepID string) {
	rec, err := h.sleepService.RunAwakenings(r.Context(), patientID, sleepID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Sleep record not found!", "")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// sleepQueryFromRequest 解析列表查询参数
func sleepQueryFromRequest(r *http.Request, patientID string) (repository.SleepQuery, error) {
	q := repository.SleepQuery{
		PatientID: patientID,
		Page:      parseInt(r.URL.Query().Get("page"), 1),
		Size:      parseInt(r.URL.Query().Get("size"), 100),
		SortDesc:  r.URL.Query().Get("sort") == "desc",
	}

	startDate, err := service.ParseQueryDate(r.URL.Query().Get("start_date"))
	if err != nil {
		return q, err
	}
	endDate, err := service.ParseQueryDate(r.URL.Query().Get("end_date"))
	if err != nil {
		return q, err
	}
	q.StartDate = startDate
	q.EndDate = endDate
	return q, nil
}

// isJSONArray 判断请求体首个非空白字符是否为 '['
func isJSONArray(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}
