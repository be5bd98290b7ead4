// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/taskman/internal/model"
)

var (
	// ErrNotFound は更新・削除対象のレコードが存在しない場合に返す。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail はメールアドレスの一意制約違反時に返す。
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	// アバター画像は読み込まない。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// List は全ユーザーを作成日時順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// Update はユーザーのプロフィール（email、name、password、age）を更新する。
	Update(ctx context.Context, user *model.User) error

	// UpdateAvatar はアバター画像を更新する。nilを渡すと削除する。
	UpdateAvatar(ctx context.Context, id string, avatar []byte) error

	// FindAvatar はアバター画像を取得する。ユーザー不在または未登録の場合はnilを返す。
	FindAvatar(ctx context.Context, id string) ([]byte, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するuser_tokens、tasksはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// TokenRepository はユーザーの有効トークン一覧の永続化インターフェース。
type TokenRepository interface {
	// Create はトークンを有効トークン一覧に追加する。
	Create(ctx context.Context, token *model.Token) error

	// IsActive はトークンが指定ユーザーの有効トークン一覧に存在するかを返す。
	IsActive(ctx context.Context, userID, token string) (bool, error)

	// DeleteByToken は指定トークンのみを一覧から削除する。
	DeleteByToken(ctx context.Context, userID, token string) error

	// DeleteByUserID は指定ユーザーの全トークンを削除し、削除件数を返す。
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
}

// TaskRepository はタスクデータの永続化インターフェース。
// すべての操作は所有者IDでスコープされる。
type TaskRepository interface {
	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// FindByIDAndOwner は所有者のタスクを取得する。見つからない場合はnilを返す。
	FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Task, error)

	// ListByOwner は所有者のタスク一覧をフィルタ条件に従って返す。
	ListByOwner(ctx context.Context, ownerID string, filter model.TaskFilter) ([]*model.Task, error)

	// Update はタスクのdescription、completedを更新する。
	// 所有者のタスクが存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, task *model.Task) error

	// DeleteByIDAndOwner は所有者のタスクを削除し、削除したタスクを返す。
	// 見つからない場合はnilを返す。
	DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Task, error)
}
