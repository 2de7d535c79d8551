package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/internal/storage"
	"github.com/taskhub/apiserver/internal/store"
	"github.com/taskhub/apiserver/types"
)

const testSecret = "test-secret"

type memTaskRepo struct {
	mu    sync.Mutex
	seq   int
	tasks map[string]types.Task
}

func (r *memTaskRepo) List(_ context.Context, userID string, filter types.TaskFilter) ([]types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *memTaskRepo) Get(_ context.Context, userID, taskID string) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok || t.UserID != userID {
		return types.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (r *memTaskRepo) Create(_ context.Context, task types.Task) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	task.CreatedAt = time.Date(2030, 1, 1, 0, 0, r.seq, 0, time.UTC)
	if task.Done {
		at := task.CreatedAt
		task.CompletedAt = &at
	}
	r.tasks[task.ID] = task
	return task, nil
}

func (r *memTaskRepo) Update(_ context.Context, task types.Task) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tasks[task.ID]
	if !ok || existing.UserID != task.UserID {
		return types.Task{}, store.ErrNotFound
	}
	existing.Title, existing.Deadline, existing.Priority = task.Title, task.Deadline, task.Priority
	r.tasks[task.ID] = existing
	return existing, nil
}

func (r *memTaskRepo) UpdateStatus(_ context.Context, userID, taskID string, done bool) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tasks[taskID]
	if !ok || existing.UserID != userID {
		return types.Task{}, store.ErrNotFound
	}
	existing.Done = done
	existing.CompletedAt = nil
	if done {
		now := time.Now().UTC()
		existing.CompletedAt = &now
	}
	r.tasks[taskID] = existing
	return existing, nil
}

func (r *memTaskRepo) Delete(_ context.Context, userID, taskID string) (types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tasks[taskID]
	if !ok || existing.UserID != userID {
		return types.Task{}, store.ErrNotFound
	}
	delete(r.tasks, taskID)
	return existing, nil
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]types.User
}

func (r *memUserRepo) List(context.Context) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	existing.FullName, existing.Email, existing.PasswordHash = user.FullName, user.Email, user.PasswordHash
	r.users[user.ID] = existing
	return existing, nil
}

func (r *memUserRepo) VerifyEmail(_ context.Context, token string) (types.User, error) {
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

func (r *memUserRepo) SetAvatarKey(_ context.Context, id, key string) error {
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

func (r *memUserRepo) Delete(_ context.Context, id string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	delete(r.users, id)
	return u, nil
}

func (r *memUserRepo) promote(t *testing.T, id string) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	require.True(t, ok)
	u.Role = types.RoleAdmin
	r.users[id] = u
}

type captureSender struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (s *captureSender) Dispatch(email, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[email] = token
}

func (s *captureSender) tokenFor(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[email]
}

type memAvatars struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memAvatars) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memAvatars) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memAvatars) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type testEnv struct {
	router http.Handler
	users  *memUserRepo
	tasks  *memTaskRepo
	sender *captureSender
}

func newTestEnv(t *testing.T, avatars services.AvatarStore) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		users:  &memUserRepo{users: map[string]types.User{}},
		tasks:  &memTaskRepo{tasks: map[string]types.Task{}},
		sender: &captureSender{tokens: map[string]string{}},
	}

	userService := services.NewUserService(env.users, env.sender, avatars, logger)
	taskService := services.NewTaskService(env.tasks)

	router := chi.NewRouter()
	Mount(router,
		NewAuthHandler(userService, testSecret, time.Hour, logger),
		NewUserHandler(userService, logger),
		NewTaskHandler(taskService, logger),
	)
	env.router = router
	return env
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

// register creates an account and logs it in, returning the user and token.
func (e *testEnv) register(t *testing.T, email, password string) (types.User, string) {
	t.Helper()
	status, resp := e.do(t, http.MethodPost, "/register", "", map[string]string{
		"fullName": "Test " + email,
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var user types.User
	require.NoError(t, json.Unmarshal(resp.Data, &user))
	return user, e.login(t, email, password)
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	status, resp := e.do(t, http.MethodPost, "/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, status, resp.Message)
	var auth AuthResponse
	require.NoError(t, json.Unmarshal(resp.Data, &auth))
	require.NotEmpty(t, auth.Token)
	return auth.Token
}

func decodeData[T any](t *testing.T, resp envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}
