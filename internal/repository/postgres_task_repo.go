package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/taskman/internal/model"
)

// taskSortColumns はソートフィールドとカラム名の対応表。
// ORDER BY句にはこの表のカラム名のみを埋め込む。
var taskSortColumns = map[model.TaskSortField]string{
	model.TaskSortCreatedAt:   "created_at",
	model.TaskSortUpdatedAt:   "updated_at",
	model.TaskSortDescription: "description",
	model.TaskSortCompleted:   "completed",
}

const taskColumns = `id, description, completed, owner_id, created_at, updated_at`

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, description, completed, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		task.ID, task.Description, task.Completed, task.OwnerID, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// FindByIDAndOwner は所有者のタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return task, nil
}

// ListByOwner は所有者のタスク一覧をフィルタ条件に従って返す。
// ソートフィールド未指定の場合はcreated_at昇順とする。
func (r *PostgresTaskRepo) ListByOwner(ctx context.Context, ownerID string, filter model.TaskFilter) ([]*model.Task, error) {
	query, args := buildListByOwnerQuery(ownerID, filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*model.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// Update はタスクのdescription、completedを更新する。
func (r *PostgresTaskRepo) Update(ctx context.Context, task *model.Task) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET description = $3, completed = $4, updated_at = $5
		 WHERE id = $1 AND owner_id = $2`,
		task.ID, task.OwnerID, task.Description, task.Completed, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return requireAffected(result)
}

// DeleteByIDAndOwner は所有者のタスクを削除し、削除したタスクを返す。
func (r *PostgresTaskRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND owner_id = $2 RETURNING `+taskColumns,
		id, ownerID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete task: %w", err)
	}
	return task, nil
}

// buildListByOwnerQuery はタスク一覧取得のSQLとパラメータを組み立てる。
func buildListByOwnerQuery(ownerID string, filter model.TaskFilter) (string, []any) {
	var b strings.Builder
	args := []any{ownerID}

	b.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = $1`)

	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		fmt.Fprintf(&b, ` AND completed = $%d`, len(args))
	}

	column, ok := taskSortColumns[filter.SortField]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	// 同値の並びを安定させるためidを第2キーにする
	fmt.Fprintf(&b, ` ORDER BY %s %s, id %s`, column, direction, direction)

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	if filter.Skip > 0 {
		args = append(args, filter.Skip)
		fmt.Fprintf(&b, ` OFFSET $%d`, len(args))
	}

	return b.String(), args
}

func scanTask(s rowScanner) (*model.Task, error) {
	task := &model.Task{}
	err := s.Scan(&task.ID, &task.Description, &task.Completed, &task.OwnerID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
