// Package handler はHTTP APIのリクエスト処理を提供する。
// コアのセマンティクスは持たず、リクエストの解釈とサービス層への委譲、
// エラー分類のHTTPステータスへの変換のみを行う。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/feedtree/internal/model"
)

// apiErrorResponse は統一エラーレスポンスのJSON形式。
type apiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Action  string `json:"action,omitempty"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Error("レスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
		}
	}
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIErrorはKindに応じたステータスで返し、それ以外は詳細を隠して500を返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeJSON(w, mapKindToHTTPStatus(apiErr.Kind), apiErrorResponse{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Kind:    string(apiErr.Kind),
			Action:  apiErr.Action,
		})
		return
	}

	slog.Error("内部エラーが発生しました", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, apiErrorResponse{
		Code:    "INTERNAL_ERROR",
		Message: "内部エラーが発生しました。",
		Kind:    string(model.KindIntegrity),
		Action:  "時間をおいて再度お試しください。",
	})
}

// mapKindToHTTPStatus はエラー分類をHTTPステータスに対応付ける。
func mapKindToHTTPStatus(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	case model.KindFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeBadRequest はリクエストボディの解釈失敗を400で返す。
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, apiErrorResponse{
		Code:    "INVALID_REQUEST",
		Message: message,
		Kind:    string(model.KindValidation),
		Action:  "リクエスト形式を確認してください。",
	})
}
