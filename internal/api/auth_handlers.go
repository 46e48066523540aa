package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/toollender/toollender/internal/auth"
	"github.com/toollender/toollender/internal/domain"
)

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "signUp",
		Method:        http.MethodPost,
		Path:          "/api/v1/auth/signup",
		Summary:       "Sign up",
		Description:   "Creates an account and its profile and returns a session token",
		Tags:          []string{"Authentication"},
		DefaultStatus: http.StatusCreated,
	}, s.handleSignUp)

	huma.Register(s.api, huma.Operation{
		OperationID: "signIn",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/signin",
		Summary:     "Sign in",
		Description: "Verifies email and password and returns a session token",
		Tags:        []string{"Authentication"},
	}, s.handleSignIn)

	huma.Register(s.api, huma.Operation{
		OperationID:   "signOut",
		Method:        http.MethodPost,
		Path:          "/api/v1/auth/signout",
		Summary:       "Sign out",
		Description:   "Revokes the session of the presented token",
		Tags:          []string{"Authentication"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusNoContent,
	}, s.handleSignOut)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteAccount",
		Method:        http.MethodDelete,
		Path:          "/api/v1/auth/me",
		Summary:       "Delete account",
		Description:   "Deletes the signed-in account, its profile and its sessions. Listed tools are kept.",
		Tags:          []string{"Authentication"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteAccount)
}

// === DTOs ===

// SignUpRequest is the request body for sign-up.
type SignUpRequest struct {
	Email         string `json:"email" doc:"Email address"`
	Password      string `json:"password" doc:"Password, at least 8 characters"`
	Name          string `json:"name" doc:"Display name"`
	PhoneNumber   string `json:"phone_number,omitempty" doc:"Phone number shown to borrowers"`
	Address       string `json:"address,omitempty" doc:"Pick-up address"`
	AssociationID string `json:"association_id,omitempty" doc:"Home association; defaults to All"`
}

// SignUpInput wraps the sign-up request for Huma.
type SignUpInput struct {
	Body SignUpRequest
}

// SignInRequest is the request body for sign-in.
type SignInRequest struct {
	Email    string `json:"email" doc:"Email address"`
	Password string `json:"password" doc:"Password"`
}

// SignInInput wraps the sign-in request for Huma.
type SignInInput struct {
	Body SignInRequest
}

// AuthResponse contains the session token and the profile of the subject.
type AuthResponse struct {
	Token     string             `json:"token" doc:"PASETO bearer token"`
	TokenType string             `json:"token_type" doc:"Token type (Bearer)"`
	ExpiresAt time.Time          `json:"expires_at" doc:"Token expiry"`
	User      domain.UserProfile `json:"user" doc:"Signed-in profile"`
}

// AuthOutput wraps the auth response for Huma.
type AuthOutput struct {
	Body AuthResponse
}

// === Handlers ===

func (s *Server) handleSignUp(ctx context.Context, input *SignUpInput) (*AuthOutput, error) {
	res, err := s.services.Auth.SignUp(ctx, auth.SignUpRequest{
		Email:         input.Body.Email,
		Password:      input.Body.Password,
		Name:          input.Body.Name,
		PhoneNumber:   input.Body.PhoneNumber,
		Address:       input.Body.Address,
		AssociationID: input.Body.AssociationID,
	})
	if err != nil {
		return nil, err
	}
	return &AuthOutput{Body: mapAuthResponse(res)}, nil
}

func (s *Server) handleSignIn(ctx context.Context, input *SignInInput) (*AuthOutput, error) {
	res, err := s.services.Auth.SignIn(ctx, auth.SignInRequest{
		Email:    input.Body.Email,
		Password: input.Body.Password,
	})
	if err != nil {
		return nil, err
	}
	return &AuthOutput{Body: mapAuthResponse(res)}, nil
}

func (s *Server) handleSignOut(ctx context.Context, _ *struct{}) (*struct{}, error) {
	subject, err := GetSubject(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.Auth.SignOut(ctx, subject); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleDeleteAccount(ctx context.Context, _ *struct{}) (*struct{}, error) {
	subject, err := GetSubject(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.Auth.DeleteCurrent(ctx, subject); err != nil {
		return nil, err
	}
	return nil, nil
}

func mapAuthResponse(res *auth.Result) AuthResponse {
	return AuthResponse{
		Token:     res.Token,
		TokenType: "Bearer",
		ExpiresAt: res.ExpiresAt,
		User:      res.Profile,
	}
}
