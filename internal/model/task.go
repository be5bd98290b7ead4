// Package model はドメインモデルを定義する。
package model

import "time"

// Task はユーザーが所有するタスクを表す。
// すべての読み書きはOwnerIDでスコープされる。
type Task struct {
	ID          string
	Description string
	Completed   bool
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskSortField はタスク一覧のソートに使用できるフィールドを表す。
type TaskSortField string

const (
	// TaskSortCreatedAt は作成日時でソートする。
	TaskSortCreatedAt TaskSortField = "createdAt"
	// TaskSortUpdatedAt は更新日時でソートする。
	TaskSortUpdatedAt TaskSortField = "updatedAt"
	// TaskSortDescription は説明文でソートする。
	TaskSortDescription TaskSortField = "description"
	// TaskSortCompleted は完了フラグでソートする。
	TaskSortCompleted TaskSortField = "completed"
)

// IsValid はソートフィールドが許可されたものかを判定する。
func (f TaskSortField) IsValid() bool {
	switch f {
	case TaskSortCreatedAt, TaskSortUpdatedAt, TaskSortDescription, TaskSortCompleted:
		return true
	default:
		return false
	}
}

// TaskFilter はタスク一覧取得の条件を表す。
// Completedがnilの場合は完了状態で絞り込まない。
// Limit、Skipが0の場合は制限なし。
type TaskFilter struct {
	Completed *bool
	Limit     int
	Skip      int
	SortField TaskSortField
	SortDesc  bool
}
