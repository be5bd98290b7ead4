// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/model"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// tokenContextKey はリクエストコンテキストに提示トークンを格納するためのキー。
	tokenContextKey = contextKey("token")
)

// TokenVerifier はトークンの署名と有効期限を検証するインターフェース。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// ActiveTokenChecker はトークンがユーザーの有効トークン一覧に含まれるかを判定するインターフェース。
// repository.TokenRepositoryの部分集合として定義する。
type ActiveTokenChecker interface {
	IsActive(ctx context.Context, userID, token string) (bool, error)
}

// AuthFailureRecorder は認証失敗の計測インターフェース。
type AuthFailureRecorder interface {
	RecordAuthFailure(reason string)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
//
// 署名・有効期限の検証と、有効トークン一覧への所属確認の両方に通過した場合のみ
// ユーザーIDと提示トークンをコンテキストに注入して次のハンドラーを呼ぶ。
// いずれかに失敗した場合は理由を開示せず401を返す。
// recorderがnilの場合は計測しない。
func NewAuthMiddleware(verifier TokenVerifier, checker ActiveTokenChecker, recorder AuthFailureRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reject := func(reason string) {
				if recorder != nil {
					recorder.RecordAuthFailure(reason)
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			}

			// 1. Bearerトークンを取得
			token, ok := bearerToken(r)
			if !ok {
				reject(metrics.AuthFailureMissingToken)
				return
			}

			// 2. 署名と有効期限を検証
			userID, err := verifier.Verify(token)
			if err != nil {
				reject(metrics.AuthFailureInvalidToken)
				return
			}

			// 3. 有効トークン一覧に含まれるかを確認
			active, err := checker.IsActive(r.Context(), userID, token)
			if err != nil {
				slog.Error("failed to check active token",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				reject(metrics.AuthFailureLookupError)
				return
			}
			if !active {
				reject(metrics.AuthFailureRevokedToken)
				return
			}

			// 4. 認証済みユーザーIDとトークンをコンテキストに注入
			setLoggedUserID(r.Context(), userID)
			ctx := ContextWithUserID(r.Context(), userID)
			ctx = ContextWithToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// TokenFromContext はリクエストコンテキストから認証に使われたトークンを取得する。
func TokenFromContext(ctx context.Context) (string, error) {
	token, ok := ctx.Value(tokenContextKey).(string)
	if !ok || token == "" {
		return "", fmt.Errorf("token not found in context")
	}
	return token, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithToken はコンテキストに提示トークンを注入する。
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}
