package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/taskhub/apiserver/types"
)

// TaskRepository defines persistence operations for tasks.
type TaskRepository interface {
	List(ctx context.Context, userID string, filter types.TaskFilter) ([]types.Task, error)
	Get(ctx context.Context, userID, taskID string) (types.Task, error)
	Create(ctx context.Context, task types.Task) (types.Task, error)
	Update(ctx context.Context, task types.Task) (types.Task, error)
	UpdateStatus(ctx context.Context, userID, taskID string, done bool) (types.Task, error)
	Delete(ctx context.Context, userID, taskID string) (types.Task, error)
}

// TaskInput is the payload for creating or updating a task.
type TaskInput struct {
	Title    string `json:"title" validate:"required"`
	Deadline string `json:"deadline" validate:"required"`
	Priority string `json:"priority" validate:"required,oneof=High Medium Low"`
	Done     *bool  `json:"is_done"`
}

// StatusInput is the payload for toggling completion. Done must be sent
// explicitly; a missing or null value is rejected.
type StatusInput struct {
	Done *bool `json:"is_done"`
}

// TaskService encapsulates task use-cases. Every operation is scoped to the
// authenticated owner.
type TaskService struct {
	repo TaskRepository
}

func NewTaskService(repo TaskRepository) *TaskService {
	return &TaskService{repo: repo}
}

// List validates the optional filters and returns the owner's tasks. An
// empty result is reported as ErrNoTasks.
func (s *TaskService) List(ctx context.Context, userID string, filter types.TaskFilter) ([]types.Task, error) {
	if filter.Priority != "" && !types.ValidPriority(filter.Priority) {
		return nil, invalidf("priority must be High, Medium, or Low")
	}
	if filter.SortOrder != "" && !types.ValidSortOrder(filter.SortOrder) {
		return nil, invalidf("sortOrder must be asc or desc")
	}

	tasks, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, userID, rawTaskID string) (types.Task, error) {
	taskID, err := parseID(rawTaskID, "task")
	if err != nil {
		return types.Task{}, err
	}
	return s.repo.Get(ctx, userID, taskID)
}

func (s *TaskService) Create(ctx context.Context, userID string, input TaskInput) (types.Task, error) {
	task, err := taskFromInput(input)
	if err != nil {
		return types.Task{}, err
	}
	task.ID = uuid.NewString()
	task.UserID = userID
	if input.Done != nil {
		task.Done = *input.Done
	}
	return s.repo.Create(ctx, task)
}

// Update overwrites title, deadline and priority; completion state is not
// touched even if the payload carries is_done.
func (s *TaskService) Update(ctx context.Context, userID, rawTaskID string, input TaskInput) (types.Task, error) {
	taskID, err := parseID(rawTaskID, "task")
	if err != nil {
		return types.Task{}, err
	}
	task, err := taskFromInput(input)
	if err != nil {
		return types.Task{}, err
	}
	task.ID = taskID
	task.UserID = userID
	return s.repo.Update(ctx, task)
}

func (s *TaskService) UpdateStatus(ctx context.Context, userID, rawTaskID string, input StatusInput) (types.Task, error) {
	taskID, err := parseID(rawTaskID, "task")
	if err != nil {
		return types.Task{}, err
	}
	if input.Done == nil {
		return types.Task{}, invalidf("is_done is required")
	}
	return s.repo.UpdateStatus(ctx, userID, taskID, *input.Done)
}

func (s *TaskService) Delete(ctx context.Context, userID, rawTaskID string) (types.Task, error) {
	taskID, err := parseID(rawTaskID, "task")
	if err != nil {
		return types.Task{}, err
	}
	return s.repo.Delete(ctx, userID, taskID)
}

func taskFromInput(input TaskInput) (types.Task, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Deadline = strings.TrimSpace(input.Deadline)
	input.Priority = strings.TrimSpace(input.Priority)
	if err := validateStruct(input); err != nil {
		return types.Task{}, err
	}

	deadline, err := parseDeadline(input.Deadline)
	if err != nil {
		return types.Task{}, err
	}

	return types.Task{
		Title:    input.Title,
		Deadline: deadline,
		Priority: input.Priority,
	}, nil
}
