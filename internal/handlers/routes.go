package handlers

import (
	"github.com/go-chi/chi/v5"
)

// Mount registers every API route on r. Everything except health, register,
// login and verify-email sits behind the auth handler's bearer check.
func Mount(r chi.Router, auth *AuthHandler, users *UserHandler, tasks *TaskHandler) {
	r.Get("/healthz", Healthz)
	AuthRouter(r, auth)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Route("/user", func(r chi.Router) {
			UserRouter(r, users)
		})
		r.Route("/task", func(r chi.Router) {
			TaskRouter(r, tasks)
		})
		r.Route("/status", func(r chi.Router) {
			StatusRouter(r, tasks)
		})
	})
}
