package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/taskhub/apiserver/types"
)

func TestRegisterVerifyEmailFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	user, _ := env.register(t, "ada@example.com", "analytical")
	require.False(t, user.Verified)

	token := env.sender.tokenFor("ada@example.com")
	require.NotEmpty(t, token)

	status, resp := env.do(t, http.MethodGet, "/verify-email?token="+token, "", nil)
	require.Equal(t, http.StatusOK, status)
	require.True(t, resp.Success)
	verified := decodeData[types.User](t, resp)
	require.True(t, verified.Verified)

	stored, err := env.users.GetByID(t.Context(), user.ID)
	require.NoError(t, err)
	require.Nil(t, stored.VerificationToken)

	status, resp = env.do(t, http.MethodGet, "/verify-email?token="+token, "", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.False(t, resp.Success)

	status, _ = env.do(t, http.MethodGet, "/verify-email", "", nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestRegisterValidationAndConflict(t *testing.T) {
	env := newTestEnv(t, nil)

	status, resp := env.do(t, http.MethodPost, "/register", "", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusBadRequest, status)
	require.False(t, resp.Success)
	require.Contains(t, resp.Message, "fullName is required")

	env.register(t, "ada@example.com", "analytical")
	status, _ = env.do(t, http.MethodPost, "/register", "", map[string]string{
		"fullName": "Imposter",
		"email":    "ada@example.com",
		"password": "analytical",
	})
	require.Equal(t, http.StatusConflict, status)
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t, nil)
	user, token := env.register(t, "ada@example.com", "analytical")

	status, resp := env.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ada@example.com", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, status)
	require.False(t, resp.Success)

	status, resp = env.do(t, http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	me := decodeData[types.User](t, resp)
	require.Equal(t, user.ID, me.ID)
	require.Equal(t, "ada@example.com", me.Email)
}

func TestRequireAuthRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	user, _ := env.register(t, "ada@example.com", "analytical")

	expired, err := issueToken(user, []byte(testSecret), -time.Minute)
	require.NoError(t, err)
	foreign, err := issueToken(user, []byte("other-secret"), time.Hour)
	require.NoError(t, err)
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, tokenClaims{
		Role: types.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":    "",
		"not bearer": "Basic abc",
		"empty":      "Bearer ",
		"garbage":    "Bearer not-a-jwt",
		"expired":    "Bearer " + expired,
		"foreign":    "Bearer " + foreign,
		"none alg":   "Bearer " + noneAlg,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			require.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	token, err := issueToken(types.User{ID: "u1", Role: types.RoleAdmin}, []byte(testSecret), time.Hour)
	require.NoError(t, err)

	identity, err := parseToken(token, []byte(testSecret))
	require.NoError(t, err)
	require.Equal(t, Identity{UserID: "u1", Role: types.RoleAdmin}, identity)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)

	status, resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.True(t, resp.Success)
}
