package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mhealth-data/internal/domain"
	"mhealth-data/internal/repository"
	"mhealth-data/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPatientID = "00000000-0000-0000-0000-000000000401"

// fakeTimeSeries 测试用时序服务桩
type fakeTimeSeries struct {
	byDate map[string]*domain.IntradayTimeSeries
}

func (f *fakeTimeSeries) FetchIntraday(_ context.Context, _, _, date string) (*domain.IntradayTimeSeries, error) {
	if series, ok := f.byDate[date]; ok {
		return series, nil
	}
	return &domain.IntradayTimeSeries{}, nil
}

func newTestRouter(t *testing.T) (*Router, repository.SleepRepository) {
	t.Helper()

	logger := zap.NewNop()
	repo := repository.NewMemorySleepRepository()
	awakenings := service.NewAwakeningsService(repo, &fakeTimeSeries{}, logger)
	sleepService := service.NewSleepService(repo, awakenings, nil, logger)

	router := NewRouter(logger)
	router.RegisterSleepRoutes(NewSleepHandler(sleepService, logger))
	return router, repo
}

func validSleepBody() map[string]any {
	return map[string]any{
		"start_time": "2024-08-20T22:00:00Z",
		"end_time":   "2024-08-21T06:00:00Z",
		"duration":   8 * 60 * 60 * 1000,
		"type":       "classic",
		"pattern": map[string]any{
			"data_set": []map[string]any{
				{"start_time": "2024-08-20T22:00:00Z", "name": "asleep", "duration": 18000000},
				{"start_time": "2024-08-21T03:00:00Z", "name": "awake", "duration": 420000},
				{"start_time": "2024-08-21T03:07:00Z", "name": "asleep", "duration": 10380000},
			},
		},
	}
}

func doRequest(t *testing.T, router *Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestAddSleep_Single(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doRequest(t, router, http.MethodPost, "/v1/patients/"+testPatientID+"/sleep", validSleepBody())
	require.Equal(t, http.StatusCreated, rr.Code)

	var created domain.SleepRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, testPatientID, created.PatientID)
	require.Equal(t, 2, created.Pattern.Summary["asleep"].Count)
	// 计步桩返回空序列 -> 无确认事件
	require.Empty(t, created.NightAwakenings)
}

func TestAddSleep_ValidationErrorIs400(t *testing.T) {
	router, _ := newTestRouter(t)

	body := validSleepBody()
	delete(body, "type")
	delete(body, "duration")

	rr := doRequest(t, router, http.MethodPost, "/v1/patients/"+testPatientID+"/sleep", body)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var errBody ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errBody))
	require.Equal(t, "Required fields were not provided!", errBody.Message)
	require.Equal(t, "duration, type required!", errBody.Description)
}

func TestAddSleep_DuplicateIs409(t *testing.T) {
	router, _ := newTestRouter(t)
	path := "/v1/patients/" + testPatientID + "/sleep"

	rr := doRequest(t, router, http.MethodPost, path, validSleepBody())
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doRequest(t, router, http.MethodPost, path, validSleepBody())
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestAddSleep_MalformedBodyIs400(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/patients/"+testPatientID+"/sleep",
		bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAddSleep_BatchIsolatesFailures(t *testing.T) {
	router, _ := newTestRouter(t)

	good := validSleepBody()
	bad := validSleepBody()
	bad["start_time"] = "2024-08-22T22:00:00Z"
	bad["type"] = "polyphasic"

	rr := doRequest(t, router, http.MethodPost, "/v1/patients/"+testPatientID+"/sleep",
		[]map[string]any{good, bad})
	require.Equal(t, http.StatusMultiStatus, rr.Code)

	var outcome domain.BatchOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &outcome))
	require.Len(t, outcome.Success, 1)
	require.Len(t, outcome.Error, 1)
	require.Equal(t, domain.BatchItemCreated, outcome.Success[0].Code)
	require.Equal(t, domain.BatchItemBadRequest, outcome.Error[0].Code)
	require.NotNil(t, outcome.Error[0].Item)
}

func TestAddSleep_BatchAppendsDecodeFailures(t *testing.T) {
	router, _ := newTestRouter(t)

	// 第二项结构不合法（start_time 不是字符串），在 Handler 层即解析失败
	raw := []byte(`[` +
		mustJSON(t, validSleepBody()) +
		`,{"start_time": 123}]`)

	req := httptest.NewRequest(http.MethodPost, "/v1/patients/"+testPatientID+"/sleep",
		bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusMultiStatus, rr.Code)

	var outcome domain.BatchOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &outcome))
	require.Len(t, outcome.Success, 1)
	require.Len(t, outcome.Error, 1)
	require.Equal(t, domain.BatchItemBadRequest, outcome.Error[0].Code)
	require.Equal(t, "Request body is not valid JSON.", outcome.Error[0].Message)
}

func TestListSleeps(t *testing.T) {
	router, _ := newTestRouter(t)
	path := "/v1/patients/" + testPatientID + "/sleep"

	first := validSleepBody()
	second := validSleepBody()
	second["start_time"] = "2024-08-21T22:00:00Z"
	second["end_time"] = "2024-08-22T06:00:00Z"
	for _, body := range []map[string]any{first, second} {
		rr := doRequest(t, router, http.MethodPost, path, body)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := doRequest(t, router, http.MethodGet, path+"?sort=desc", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "2", rr.Header().Get("X-Total-Count"))

	var records []*domain.SleepRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 2)
	require.Equal(t, "2024-08-21T22:00:00Z", records[0].StartTime)
}

func TestListSleeps_BadDateIs400(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doRequest(t, router, http.MethodGet,
		"/v1/patients/"+testPatientID+"/sleep?start_date=21-08-2024", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetSleep_NotFoundIs404(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doRequest(t, router, http.MethodGet,
		"/v1/patients/"+testPatientID+"/sleep/missing-id", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteSleep(t *testing.T) {
	router, repo := newTestRouter(t)

	rr := doRequest(t, router, http.MethodPost, "/v1/patients/"+testPatientID+"/sleep", validSleepBody())
	require.Equal(t, http.StatusCreated, rr.Code)
	var created domain.SleepRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	path := "/v1/patients/" + testPatientID + "/sleep/" + created.ID
	rr = doRequest(t, router, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	got, err := repo.GetByID(context.Background(), testPatientID, created.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	rr = doRequest(t, router, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRunAwakenings_Endpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doRequest(t, router, http.MethodPost, "/v1/patients/"+testPatientID+"/sleep", validSleepBody())
	require.Equal(t, http.StatusCreated, rr.Code)
	var created domain.SleepRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = doRequest(t, router, http.MethodPost,
		"/v1/patients/"+testPatientID+"/sleep/"+created.ID+"/awakenings", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var updated domain.SleepRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	require.Empty(t, updated.Awakenings)

	rr = doRequest(t, router, http.MethodPost,
		"/v1/patients/"+testPatientID+"/sleep/missing-id/awakenings", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doRequest(t, router, http.MethodPut, "/v1/patients/"+testPatientID+"/sleep", validSleepBody())
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestExportSleeps(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doRequest(t, router, http.MethodPost, "/v1/patients/"+testPatientID+"/sleep", validSleepBody())
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/v1/patients/"+testPatientID+"/sleep/export", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rr.Header().Get("Content-Type"))
	require.NotZero(t, rr.Body.Len())
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}
