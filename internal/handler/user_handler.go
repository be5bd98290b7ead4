package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskman/internal/avatar"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/user"
)

// multipartOverhead はアバターアップロード時にファイル本体以外に許容するバイト数。
const multipartOverhead = 64 << 10

// avatarFormField はアバターアップロードのmultipartフィールド名。
const avatarFormField = "avatar"

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Register(ctx context.Context, in user.RegisterInput) (*model.User, string, error)
	Login(ctx context.Context, email, password string) (*model.User, string, error)
	Logout(ctx context.Context, userID, token string) error
	LogoutAll(ctx context.Context, userID string) error
	List(ctx context.Context) ([]*model.User, error)
	Get(ctx context.Context, userID string) (*model.User, error)
	Update(ctx context.Context, userID string, fields model.UpdateFields) (*model.User, error)
	Delete(ctx context.Context, userID string) (*model.User, error)
	UploadAvatar(ctx context.Context, userID, filename string, data []byte) error
	DeleteAvatar(ctx context.Context, userID string) (*model.User, error)
	GetAvatar(ctx context.Context, userID string) ([]byte, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service        UserServiceInterface
	avatarMaxBytes int64
}

// NewUserHandler はUserHandlerを生成する。
// avatarMaxBytesが0以下の場合はavatar.DefaultMaxBytesを使う。
func NewUserHandler(service UserServiceInterface, avatarMaxBytes int64) *UserHandler {
	if avatarMaxBytes <= 0 {
		avatarMaxBytes = avatar.DefaultMaxBytes
	}
	return &UserHandler{
		service:        service,
		avatarMaxBytes: avatarMaxBytes,
	}
}

// registerRequest はユーザー登録リクエストのボディ。
type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse はユーザー情報のAPIレスポンス。
// パスワード、トークン、アバター画像は含めない。
type userResponse struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       int       `json:"age"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// authResponse は登録・ログインのAPIレスポンス。
type authResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

// Register はユーザー登録を処理する。
// POST /users
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	u, token, err := h.service.Register(r.Context(), user.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Age:      req.Age,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{User: toUserResponse(u), Token: token})
}

// Login はログインを処理する。成功するたびに新しいトークンを発行する。
// POST /users/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	u, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{User: toUserResponse(u), Token: token})
}

// Logout は提示トークンのみを失効させる。
// POST /users/logout
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	token, err := middleware.TokenFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Logout(r.Context(), userID, token); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// LogoutAll はユーザーの全トークンを失効させる。
// POST /users/logoutAll
func (h *UserHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.LogoutAll(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// List は全ユーザーを返す。
// GET /users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]userResponse, len(users))
	for i, u := range users {
		resp[i] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Me は認証ユーザーのプロフィールを返す。
// GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	u, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// UpdateMe は認証ユーザーのプロフィールを部分更新する。
// PATCH /users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	fields, err := decodeUpdateFields(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	u, err := h.service.Update(r.Context(), userID, fields)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// DeleteMe は認証ユーザーを削除し、削除したプロフィールを返す。
// DELETE /users/me
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	u, err := h.service.Delete(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// UploadAvatar はアバター画像のアップロードを処理する。
// POST /users/me/avatar （multipart/form-data、フィールド名 avatar）
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	// 1. リクエストボディ全体のサイズを制限
	limit := h.avatarMaxBytes + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			handleServiceError(w, model.NewAvatarTooLargeError(h.avatarMaxBytes))
			return
		}
		handleServiceError(w, model.NewInvalidAvatarError())
		return
	}

	// 2. ファイルを取り出す
	file, header, err := r.FormFile(avatarFormField)
	if err != nil {
		handleServiceError(w, model.NewInvalidAvatarError())
		return
	}
	defer file.Close()

	if header.Size > h.avatarMaxBytes {
		handleServiceError(w, model.NewAvatarTooLargeError(h.avatarMaxBytes))
		return
	}

	// 3. 上限+1バイトまで読み、超過はサービス層で判定する
	data, err := io.ReadAll(io.LimitReader(file, h.avatarMaxBytes+1))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.UploadAvatar(r.Context(), userID, header.Filename, data); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteAvatar はアバター画像を削除し、プロフィールを返す。
// DELETE /users/me/avatar
func (h *UserHandler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	u, err := h.service.DeleteAvatar(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// GetAvatar は指定ユーザーのアバター画像を返す。認証不要。
// GET /users/{id}/avatar
func (h *UserHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.GetAvatar(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Age:       u.Age,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
