package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterSleepRoutes 注册睡眠记录路由
// 路径：/v1/patients/{patient_id}/sleep[/{sleep_id}[/awakenings]]
func (r *Router) RegisterSleepRoutes(h *SleepHandler) {
	r.Handle("/v1/patients/", func(w http.ResponseWriter, req *http.Request) {
		patientID, rest, ok := splitPatientPath(req.URL.Path)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch {
		case rest == "sleep":
			switch req.Method {
			case http.MethodPost:
				h.AddSleep(w, req, patientID)
			case http.MethodGet:
				h.ListSleeps(w, req, patientID)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		case rest == "sleep/export":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.ExportSleeps(w, req, patientID)
		case strings.HasPrefix(rest, "sleep/") && strings.HasSuffix(rest, "/awakenings"):
			sleepID := strings.TrimSuffix(strings.TrimPrefix(rest, "sleep/"), "/awakenings")
			if sleepID == "" || strings.Contains(sleepID, "/") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.RunAwakenings(w, req, patientID, sleepID)
		case strings.HasPrefix(rest, "sleep/"):
			sleepID := strings.TrimPrefix(rest, "sleep/")
			if sleepID == "" || strings.Contains(sleepID, "/") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			switch req.Method {
			case http.MethodGet:
				h.GetSleep(w, req, patientID, sleepID)
			case http.MethodDelete:
				h.DeleteSleep(w, req, patientID, sleepID)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// splitPatientPath 从 /v1/patients/{patient_id}/{rest} 中拆出 patient_id 和剩余路径
func splitPatientPath(path string) (patientID, rest string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/v1/patients/")
	if trimmed == path {
		return "", "", false
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], "/"), true
}
