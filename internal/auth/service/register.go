package service

import (
	"context"
	"errors"

	"kycflow/internal/auth/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/requestcontext"
)

// Register creates a regular (non-admin) account. Email uniqueness is an
// exact, case-sensitive match.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()

	user, err := s.createUser(ctx, req, false)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventRegisterSuccess,
		"user_id", user.ID,
		"email", user.Email)
	if s.metrics != nil {
		s.metrics.IncrementUsersRegistered()
	}
	return user, nil
}

func (s *Service) createUser(ctx context.Context, req *models.RegisterRequest, isAdmin bool) (*models.User, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	user, err := models.NewUser(id.NewUserID(), req.Email, hash, req.FirstName, req.LastName, req.Phone, isAdmin, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeDuplicateUser, "user already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to create user")
	}
	return user, nil
}

// ResetPassword records a reset request for a known email. Credentials are
// not changed; delivery of the reset link is out of band.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeUserNotFound, "user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to load user")
	}

	s.logAudit(ctx, audit.EventPasswordResetRequest,
		"user_id", user.ID,
		"email", user.Email)
	return nil
}

// RequireAdmin fails with Forbidden unless userID is an administrator.
func (s *Service) RequireAdmin(ctx context.Context, userID id.UserID) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeForbidden, "admin access required")
		}
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to load user")
	}
	if !user.IsAdmin {
		return dErrors.New(dErrors.CodeForbidden, "admin access required")
	}
	return nil
}

// Bootstrap seeds the administrator account when it does not exist yet.
func (s *Service) Bootstrap(ctx context.Context) error {
	_, err := s.users.FindByEmail(ctx, s.cfg.AdminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to look up admin user")
	}

	admin, err := s.createUser(ctx, &models.RegisterRequest{
		Email:     s.cfg.AdminEmail,
		Password:  s.cfg.AdminPassword,
		FirstName: "Admin",
		LastName:  "User",
		Phone:     "+1234567890",
	}, true)
	if err != nil {
		// Another instance seeded it first.
		if dErrors.HasCode(err, dErrors.CodeDuplicateUser) {
			return nil
		}
		return err
	}
	s.logger.InfoContext(ctx, "seeded admin user", "user_id", admin.ID.String(), "email", admin.Email)
	return nil
}
