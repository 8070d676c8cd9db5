package domain

import "time"

// ============================================================
// Auth: users and credentials
// ============================================================

// User is an account owning incomes and expenses.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Credentials is the body for POST /v1/auth/register and /v1/auth/login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the body for 200 from POST /v1/auth/login.
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
}
