package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
)

type fakeUserRepo struct {
	users map[string]*domain.User
}

func (f *fakeUserRepo) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	return f.users[username], nil
}

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &fakeUserRepo{users: map[string]*domain.User{
		"nbe-officer": {
			ID:           "u-1",
			Username:     "nbe-officer",
			PasswordHash: string(hash),
			Role:         domain.RoleNationalBank,
			Organization: "NBE",
		},
	}}
	return NewAuthService(repo, key, &key.PublicKey, time.Hour)
}

func TestGenerateTokenRoundTrip(t *testing.T) {
	svc := newTestAuthService(t)

	resp, err := svc.GenerateToken(context.Background(), "nbe-officer", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Greater(t, resp.ExpiresIn, int64(0))

	// Выпущенный токен проходит собственную проверку (общий BaseValidator)
	claims, err := svc.VerifyToken("Bearer " + resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, domain.RoleNationalBank, claims.Role)
	assert.Equal(t, "coffee-export-workflow", claims.Issuer)
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	svc := newTestAuthService(t)

	// Неверный пароль и несуществующий пользователь дают одинаковую ошибку:
	// перечисление логинов по ответам недопустимо
	_, errPass := svc.GenerateToken(context.Background(), "nbe-officer", "wrong")
	require.Error(t, errPass)

	_, errUser := svc.GenerateToken(context.Background(), "nobody", "wrong")
	require.Error(t, errUser)

	assert.Equal(t, errPass.Error(), errUser.Error())
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	svc := newTestAuthService(t)

	_, err := svc.VerifyToken("Bearer not-a-token")
	assert.Error(t, err)

	// Токен, подписанный чужим ключом, не проходит
	other := newTestAuthService(t)
	resp, err := other.GenerateToken(context.Background(), "nbe-officer", "correct-horse")
	require.NoError(t, err)
	_, err = svc.VerifyToken(resp.AccessToken)
	assert.Error(t, err)
}
