package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-access-api/internal/models"
	appErrors "github.com/noah-isme/room-access-api/pkg/errors"
)

type authServiceMock struct {
	last models.LoginRequest
	err  error
}

func (m *authServiceMock) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.LoginResponse{Token: "token", ExpiresIn: 3600}, nil
}

func TestAuthHandlerLoginCapturesClientMeta(t *testing.T) {
	svc := &authServiceMock{}
	c, w := newTestContext(t, http.MethodPost, "/auth/login", `{"account":"alice","password":"secret","verifyCode":"1234"}`, nil)
	c.Request.Header.Set("User-Agent", "gate-console/1.0")
	c.Request.RemoteAddr = "10.0.0.7:5555"

	NewAuthHandler(svc).Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", svc.last.Account)
	assert.Equal(t, "1234", svc.last.VerifyCode)
	assert.Equal(t, "gate-console/1.0", svc.last.UserAgent)
	assert.Equal(t, "10.0.0.7", svc.last.IP)
	assert.Contains(t, w.Body.String(), `"token":"token"`)
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	c, w := newTestContext(t, http.MethodPost, "/auth/login", `{"account":"alice","password":"nope"}`, nil)
	NewAuthHandler(&authServiceMock{err: appErrors.ErrInvalidCredentials}).Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerLoginUnexpectedError(t *testing.T) {
	c, w := newTestContext(t, http.MethodPost, "/auth/login", `{"account":"alice","password":"x"}`, nil)
	NewAuthHandler(&authServiceMock{err: errors.New("db down")}).Login(c)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, appErrors.ErrInternal.Code, decodeEnvelope(t, w).Error.Code)
}
