package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"fmt"

	"github.com/hitoshi/taskman/internal/model"
)

// PostgresTokenRepo はPostgreSQLを使用した有効トークン一覧のリポジトリ。
// トークンはSHA-256ハッシュで保存し、生の値はDBに残さない。
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo はPostgresTokenRepoを生成する。
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

// Create はトークンを有効トークン一覧に追加する。
func (r *PostgresTokenRepo) Create(ctx context.Context, token *model.Token) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_tokens (token_hash, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		hashToken(token.Token), token.UserID, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

// IsActive はトークンが指定ユーザーの有効トークン一覧に存在するかを返す。
// ユーザーが削除済みの場合はCASCADEによりfalseとなる。
func (r *PostgresTokenRepo) IsActive(ctx context.Context, userID, token string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM user_tokens WHERE token_hash = $1 AND user_id = $2
		 )`,
		hashToken(token), userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	return exists, nil
}

// DeleteByToken は指定トークンのみを一覧から削除する。
func (r *PostgresTokenRepo) DeleteByToken(ctx context.Context, userID, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_tokens WHERE token_hash = $1 AND user_id = $2`,
		hashToken(token), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全トークンを削除し、削除件数を返す。
func (r *PostgresTokenRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM user_tokens WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// hashToken はトークン文字列のSHA-256をbase64urlで返す。
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// compile-time interface check
var _ TokenRepository = (*PostgresTokenRepo)(nil)
