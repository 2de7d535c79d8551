package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/taskhub/apiserver/types"
)

const taskColumns = `task_id, user_id, title, created_at, deadline, priority, is_done, completed_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// TaskRepository handles persistence for tasks. Every statement is scoped
// by the owning user id.
type TaskRepository struct {
	db *sqlx.DB
}

func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) List(ctx context.Context, userID string, filter types.TaskFilter) ([]types.Task, error) {
	query, args := buildTaskListQuery(userID, filter)
	tasks := []types.Task{}
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) Get(ctx context.Context, userID, taskID string) (types.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE task_id = $1 AND user_id = $2`
	return r.getOne(ctx, query, taskID, userID)
}

func (r *TaskRepository) Create(ctx context.Context, task types.Task) (types.Task, error) {
	task.CreatedAt = time.Now().UTC()
	task.CompletedAt = nil
	if task.Done {
		completedAt := task.CreatedAt
		task.CompletedAt = &completedAt
	}

	const query = `
		INSERT INTO tasks (task_id, user_id, title, created_at, deadline, priority, is_done, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.UserID,
		task.Title,
		task.CreatedAt,
		task.Deadline,
		task.Priority,
		task.Done,
		task.CompletedAt,
	); err != nil {
		return types.Task{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// Update overwrites title, deadline and priority. Completion state is left
// untouched.
func (r *TaskRepository) Update(ctx context.Context, task types.Task) (types.Task, error) {
	const query = `
		UPDATE tasks
		SET title = $1,
			deadline = $2,
			priority = $3
		WHERE task_id = $4 AND user_id = $5
		RETURNING ` + taskColumns
	return r.getOne(ctx, query, task.Title, task.Deadline, task.Priority, task.ID, task.UserID)
}

// UpdateStatus sets the completion flag and its timestamp in one statement.
// A task that is already done keeps its original completion time.
func (r *TaskRepository) UpdateStatus(ctx context.Context, userID, taskID string, done bool) (types.Task, error) {
	const query = `
		UPDATE tasks
		SET is_done = $1,
			completed_at = CASE WHEN $1 THEN COALESCE(completed_at, NOW()) ELSE NULL END
		WHERE task_id = $2 AND user_id = $3
		RETURNING ` + taskColumns
	return r.getOne(ctx, query, done, taskID, userID)
}

// Delete removes a task and returns the deleted row.
func (r *TaskRepository) Delete(ctx context.Context, userID, taskID string) (types.Task, error) {
	const query = `DELETE FROM tasks WHERE task_id = $1 AND user_id = $2 RETURNING ` + taskColumns
	return r.getOne(ctx, query, taskID, userID)
}

func (r *TaskRepository) getOne(ctx context.Context, query string, args ...any) (types.Task, error) {
	var task types.Task
	if err := r.db.GetContext(ctx, &task, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}

// buildTaskListQuery composes the listing statement. Filter values are
// always bound as parameters; only the ORDER BY keyword is chosen here.
func buildTaskListQuery(userID string, filter types.TaskFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`)
	args := []any{userID}

	if filter.Priority != "" {
		args = append(args, filter.Priority)
		fmt.Fprintf(&b, ` AND priority = $%d`, len(args))
	}

	if filter.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(filter.Search)+"%")
		fmt.Fprintf(&b, ` AND title ILIKE $%d`, len(args))
	}

	order := "DESC"
	if filter.SortOrder == types.SortAsc {
		order = "ASC"
	}
	b.WriteString(` ORDER BY created_at ` + order)

	return b.String(), args
}
