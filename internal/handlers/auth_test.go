package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestLoginAndMe(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	seeded := env.seedUser(t, "alice", "s3cret", true, false)

	token := env.login(t, "alice", "s3cret")

	resp := env.do(t, http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	me := decodeBody[MeResponse](t, resp)
	assert.True(t, me.IsLoggedIn)
	assert.Equal(t, seeded.ID, me.User.ID)
	assert.Equal(t, "alice", me.User.Username)
	assert.False(t, me.User.IsAdmin)
}

func TestLogin_BadCredentials(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedUser(t, "alice", "s3cret", true, false)
	env.seedUser(t, "bob", "s3cret", false, false)

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "alice", "wrong"},
		{"unknown user", "nobody", "s3cret"},
		{"inactive user", "bob", "s3cret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/login", "", map[string]string{
				"username": tc.username,
				"password": tc.password,
			})
			assert.Equal(t, http.StatusUnauthorized, resp.Code)
			assert.Equal(t, "Incorrect username or password.", decodeBody[ErrorResponse](t, resp).Error)
		})
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "alice",
		"password": "s3cret",
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	created := decodeBody[RegisterResponse](t, resp)
	assert.Equal(t, "User created", created.Message)
	assert.NotZero(t, created.ID)

	// A fresh registration cannot log in until activated.
	resp = env.do(t, http.MethodPost, "/login", "", map[string]string{
		"username": "alice",
		"password": "s3cret",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seedUser(t, "alice", "s3cret", true, false)

	resp := env.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "alice",
		"password": "other",
	})
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestRegister_MissingFields(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/register", "", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(t, http.MethodPost, "/register", "", map[string]string{"password": "s3cret"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMe_RequiresToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "Unauthorized, no token provided", decodeBody[ErrorResponse](t, resp).Error)

	resp = env.do(t, http.MethodGet, "/users/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "Unauthorized, invalid token", decodeBody[ErrorResponse](t, resp).Error)
}
