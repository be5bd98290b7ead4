// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// 原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, task, user, system
	Action   string // クライアント向け対処方法
	Detail   string // 内部エラーの詳細（500応答のみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeValidation      = "VALIDATION_FAILED"
	ErrCodeInvalidUpdates  = "INVALID_UPDATES"
	ErrCodeLoginFailed     = "LOGIN_FAILED"
	ErrCodeEmailTaken      = "EMAIL_TAKEN"
	ErrCodeInvalidSort     = "INVALID_SORT"
	ErrCodeInvalidAvatar   = "INVALID_AVATAR"
	ErrCodeAvatarTooLarge  = "AVATAR_TOO_LARGE"
	ErrCodeUserNotFound    = "USER_NOT_FOUND"
	ErrCodeTaskNotFound    = "TASK_NOT_FOUND"
	ErrCodeAvatarNotFound  = "AVATAR_NOT_FOUND"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeTooManyRequests = "RATE_LIMIT_EXCEEDED"
)

// NewUnauthorizedError は認証失敗エラーを生成する。
// 失敗理由はクライアントに開示しない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Please authenticate.",
		Category: "auth",
		Action:   "有効なBearerトークンを指定してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Request body could not be parsed.",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: "validation",
		Action:   "入力値を確認してください。",
	}
}

// NewInvalidUpdatesError は許可リスト外のフィールドを含む更新リクエストのエラーを生成する。
func NewInvalidUpdatesError(fields []string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUpdates,
		Message:  fmt.Sprintf("Invalid updates! (%s)", strings.Join(fields, ", ")),
		Category: "validation",
		Action:   "更新可能なフィールドのみを指定してください。",
	}
}

// NewLoginFailedError はログイン失敗エラーを生成する。
// ユーザー不在とパスワード不一致を区別しない。
func NewLoginFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  "Unable to login.",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "email: already registered",
		Category: "validation",
		Action:   "別のメールアドレスを指定してください。",
	}
}

// NewInvalidSortError は無効なソート指定エラーを生成する。
func NewInvalidSortError(sortBy string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSort,
		Message:  fmt.Sprintf("Invalid sortBy: %s", sortBy),
		Category: "validation",
		Action:   "sortByには createdAt、updatedAt、description、completed のいずれかと _asc または _desc を指定してください。",
	}
}

// NewInvalidAvatarError はアバター画像の形式エラーを生成する。
func NewInvalidAvatarError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAvatar,
		Message:  "Please upload a jpg jpeg or png Image",
		Category: "validation",
		Action:   "jpg、jpeg、png形式の画像を指定してください。",
	}
}

// NewAvatarTooLargeError はアバター画像のサイズ超過エラーを生成する。
func NewAvatarTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodeAvatarTooLarge,
		Message:  fmt.Sprintf("File too large (max %d bytes)", limit),
		Category: "validation",
		Action:   "より小さい画像を指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "user",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewTaskNotFoundError はタスクが見つからない場合のエラーを生成する。
// 他ユーザーのタスクも同じエラーとし、存在を開示しない。
func NewTaskNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  "Task not found.",
		Category: "task",
		Action:   "タスクIDを確認してください。",
	}
}

// NewAvatarNotFoundError はアバター画像が未登録の場合のエラーを生成する。
func NewAvatarNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAvatarNotFound,
		Message:  "Avatar not found.",
		Category: "user",
		Action:   "アバター画像をアップロードしてください。",
	}
}

// NewInternalError は予期しないサーバー・DBエラーを生成する。
// 原因のエラー文字列をDetailとしてクライアントに返す。
func NewInternalError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error.",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Detail:   detail,
	}
}
