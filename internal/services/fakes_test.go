package services

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taskhub/apiserver/internal/storage"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
)

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]types.Task

	lastFilter types.TaskFilter
	err        error
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: map[string]types.Task{}}
}

func (r *fakeTaskRepo) List(_ context.Context, userID string, filter types.TaskFilter) ([]types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter = filter
	if r.err != nil {
		return nil, r.err
	}
	out := []types.Task{}
	for _, t := range r.tasks {
		if t.UserID != userID {
			continue
		}
		if filter.Priority != "" && t.Priority != filter.Priority {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.SortOrder == types.SortAsc {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *fakeTaskRepo) Get(_ context.Context, userID, taskID string) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok || t.UserID != userID {
		return types.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (r *fakeTaskRepo) Create(_ context.Context, task types.Task) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.Task{}, r.err
	}
	task.CreatedAt = time.Now().UTC().Add(time.Duration(len(r.tasks)) * time.Millisecond)
	if task.Done {
		at := task.CreatedAt
		task.CompletedAt = &at
	}
	r.tasks[task.ID] = task
	return task, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, task types.Task) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tasks[task.ID]
	if !ok || existing.UserID != task.UserID {
		return types.Task{}, store.ErrNotFound
	}
	existing.Title = task.Title
	existing.Deadline = task.Deadline
	existing.Priority = task.Priority
	r.tasks[task.ID] = existing
	return existing, nil
}

func (r *fakeTaskRepo) UpdateStatus(_ context.Context, userID, taskID string, done bool) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tasks[taskID]
	if !ok || existing.UserID != userID {
		return types.Task{}, store.ErrNotFound
	}
	existing.Done = done
	if !done {
		existing.CompletedAt = nil
	} else if existing.CompletedAt == nil {
		now := time.Now().UTC()
		existing.CompletedAt = &now
	}
	r.tasks[taskID] = existing
	return existing, nil
}

func (r *fakeTaskRepo) Delete(_ context.Context, userID, taskID string) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tasks[taskID]
	if !ok || existing.UserID != userID {
		return types.Task{}, store.ErrNotFound
	}
	delete(r.tasks, taskID)
	return existing, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]types.User{}}
}

func (r *fakeUserRepo) List(context.Context) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	for _, u := range r.users {
		if u.ID != user.ID && u.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	existing.FullName = user.FullName
	existing.Email = user.Email
	existing.PasswordHash = user.PasswordHash
	existing.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = existing
	return existing, nil
}

func (r *fakeUserRepo) VerifyEmail(_ context.Context, token string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, u := range r.users {
		if u.VerificationToken != nil && *u.VerificationToken == token {
			u.Verified = true
			u.VerificationToken = nil
			r.users[id] = u
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) SetAvatarKey(_ context.Context, id, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.AvatarKey = &key
	r.users[id] = u
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	delete(r.users, id)
	return u, nil
}

type sentMail struct {
	email string
	token string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMail
}

func (s *recordingSender) Dispatch(email, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMail{email: email, token: token})
}

type memoryAvatars struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func newMemoryAvatars() *memoryAvatars {
	return &memoryAvatars{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (m *memoryAvatars) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.contentTypes[key] = contentType
	return nil
}

func (m *memoryAvatars) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryAvatars) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}
