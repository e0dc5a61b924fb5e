package handler

import (
	"time"

	"kycflow/internal/auth/models"
)

type UserResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Phone     string     `json:"phone,omitempty"`
	IsAdmin   bool       `json:"is_admin"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	SessionID   string       `json:"session_id"`
	User        UserResponse `json:"user"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

func toLoginResponse(res *models.LoginResult) LoginResponse {
	return LoginResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		ExpiresIn:   res.ExpiresIn,
		SessionID:   res.Session.ID.String(),
		User:        toUserResponse(res.User),
	}
}
