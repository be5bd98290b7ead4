package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
)

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
// 404はボディを返さない。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if statusCode == http.StatusNotFound {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱い、詳細を返す
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w, err.Error())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRequest,
		model.ErrCodeValidation,
		model.ErrCodeInvalidUpdates,
		model.ErrCodeLoginFailed,
		model.ErrCodeEmailTaken,
		model.ErrCodeInvalidSort,
		model.ErrCodeInvalidAvatar,
		model.ErrCodeAvatarTooLarge:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound, model.ErrCodeTaskNotFound, model.ErrCodeAvatarNotFound:
		return http.StatusNotFound
	case model.ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// requireUserID はコンテキストから認証済みユーザーIDを取得する。
// 取得できない場合は401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// decodeUpdateFields は部分更新リクエストのボディをフィールド名と生の値に分解する。
func decodeUpdateFields(r *http.Request) (model.UpdateFields, error) {
	var fields model.UpdateFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		return nil, model.NewInvalidRequestError()
	}
	if fields == nil {
		fields = model.UpdateFields{}
	}
	return fields, nil
}
