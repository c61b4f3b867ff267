package httpapi

import (
	"errors"
	"net/http"

	"mhealth-data/internal/domain"
)

// ErrorBody API 错误响应体（code 与 HTTP 状态码一致）
type ErrorBody struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, description string) {
	writeJSON(w, status, ErrorBody{Code: status, Message: message, Description: description})
}

// writeDomainError 将领域错误映射为 HTTP 状态码
// 校验 -> 400，冲突 -> 409，远程调用失败 -> 502，其余 -> 500
func writeDomainError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	var cErr *domain.ConflictError
	var rErr *domain.RemoteCallError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Message, vErr.Description)
	case errors.As(err, &cErr):
		writeError(w, http.StatusConflict, cErr.Message, "")
	case errors.As(err, &rErr):
		writeError(w, http.StatusBadGateway, rErr.Message, "")
	default:
		writeError(w, http.StatusInternalServerError, "An internal server error has occurred.", "")
	}
}
