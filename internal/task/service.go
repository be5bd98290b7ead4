// Package task はタスク管理のドメインロジックを提供する。
// すべての操作は呼び出しユーザー（所有者）でスコープされる。
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// updatableFields はPATCH /tasks/{id}で変更可能なフィールド。
var updatableFields = model.NewAllowList("description", "completed")

// Sanitizer はタスク説明のプレーンテキスト化インターフェース。
type Sanitizer interface {
	Sanitize(raw string) string
}

// CreateInput はタスク作成の入力値。
type CreateInput struct {
	Description string
	Completed   bool
}

// Service はタスク管理のサービス層。
type Service struct {
	repo      repository.TaskRepository
	sanitizer Sanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.TaskRepository, sanitizer Sanitizer) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// ParseListQuery はGET /tasksのクエリパラメータを一覧条件に変換する。
//
//   - completed: "true"の場合のみtrue、それ以外の値はfalseで絞り込む。未指定なら絞り込まない。
//   - limit, skip: 0以上の整数のみ採用し、それ以外は無視する。
//   - sortBy: "<field>_<asc|desc>"。フィールドか方向が不正な場合はエラー。
func ParseListQuery(q url.Values) (model.TaskFilter, error) {
	var filter model.TaskFilter

	if v := q.Get("completed"); v != "" {
		completed := v == "true"
		filter.Completed = &completed
	}
	if n, ok := parseNonNegative(q.Get("limit")); ok {
		filter.Limit = n
	}
	if n, ok := parseNonNegative(q.Get("skip")); ok {
		filter.Skip = n
	}

	if sortBy := q.Get("sortBy"); sortBy != "" {
		field, dir, ok := strings.Cut(sortBy, "_")
		if !ok || !model.TaskSortField(field).IsValid() {
			return model.TaskFilter{}, model.NewInvalidSortError(sortBy)
		}
		switch dir {
		case "asc":
		case "desc":
			filter.SortDesc = true
		default:
			return model.TaskFilter{}, model.NewInvalidSortError(sortBy)
		}
		filter.SortField = model.TaskSortField(field)
	}

	return filter, nil
}

func parseNonNegative(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// List は所有者のタスク一覧を返す。
func (s *Service) List(ctx context.Context, ownerID string, filter model.TaskFilter) ([]*model.Task, error) {
	tasks, err := s.repo.ListByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	return tasks, nil
}

// Get は所有者のタスクを返す。
// 他ユーザーのタスク、存在しないID、形式不正なIDはいずれもTaskNotFoundとする。
func (s *Service) Get(ctx context.Context, ownerID, id string) (*model.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewTaskNotFoundError()
	}

	task, err := s.repo.FindByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError()
	}
	return task, nil
}

// Create は呼び出しユーザーを所有者としてタスクを作成する。
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*model.Task, error) {
	description, err := s.normalizeDescription(in.Description)
	if err != nil {
		return nil, err
	}

	now := s.now()
	task := &model.Task{
		ID:          uuid.NewString(),
		Description: description,
		Completed:   in.Completed,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return task, nil
}

// Update は所有者のタスクを部分更新する。
// 許可リスト外のフィールドが含まれる場合はDBにアクセスせずにエラーを返す。
func (s *Service) Update(ctx context.Context, ownerID, id string, fields model.UpdateFields) (*model.Task, error) {
	// 1. 許可リストの検証
	if err := updatableFields.Check(fields); err != nil {
		return nil, err
	}

	// 2. 所有者スコープで取得
	task, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	// 3. 変更を適用
	if raw, ok := fields["description"]; ok {
		var v string
		if model.IsNull(raw) || json.Unmarshal(raw, &v) != nil {
			return nil, model.NewValidationError("description", "must be a string")
		}
		description, err := s.normalizeDescription(v)
		if err != nil {
			return nil, err
		}
		task.Description = description
	}
	if raw, ok := fields["completed"]; ok {
		var v bool
		if model.IsNull(raw) || json.Unmarshal(raw, &v) != nil {
			return nil, model.NewValidationError("completed", "must be a boolean")
		}
		task.Completed = v
	}

	// 4. 保存
	task.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, task); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewTaskNotFoundError()
		}
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	return task, nil
}

// Delete は所有者のタスクを削除し、削除したタスクを返す。
func (s *Service) Delete(ctx context.Context, ownerID, id string) (*model.Task, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewTaskNotFoundError()
	}

	task, err := s.repo.DeleteByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError()
	}
	return task, nil
}

func (s *Service) normalizeDescription(raw string) (string, error) {
	description := strings.TrimSpace(raw)
	if s.sanitizer != nil {
		description = s.sanitizer.Sanitize(description)
	}
	if description == "" {
		return "", model.NewValidationError("description", "is required")
	}
	return description, nil
}
