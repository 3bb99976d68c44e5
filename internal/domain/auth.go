package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims — полезная нагрузка JWT. Роль организации кладем прямо в токен:
// движок workflow получает ее явным параметром на каждый вызов,
// никакого неявного глобального состояния сессии.
type CustomClaims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"` // exporter, ecta, national-bank, ...
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Никогда не отправляем на фронт
	Role         Role      `json:"role"`
	Organization string    `json:"organization"` // NBE, ECTA, ECX, Customs...
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
