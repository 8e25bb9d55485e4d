package iam

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/terraconstructs/gatekeeper/internal/auth"
	"github.com/terraconstructs/gatekeeper/internal/db/models"
	"github.com/terraconstructs/gatekeeper/internal/repository"
)

// CreateUser implements Service.
func (s *iamService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := requirePassword(in.Password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password, s.security.BcryptCost)
	if err != nil {
		return nil, err
	}
	roleIDs := uniqueSorted(in.RoleIDs)

	// Accounts created by an administrator are considered verified.
	user := &models.User{
		Email:         email,
		PasswordHash:  &hash,
		Phone:         in.Phone,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		EmailVerified: true,
		IsActive:      true,
		IsStaff:       in.IsStaff,
		IsSuperUser:   in.IsSuperUser,
	}
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repos := repository.New(tx)

		if len(roleIDs) == 0 {
			role, err := repos.Roles.GetByName(ctx, s.security.DefaultRole)
			if err != nil {
				return fmt.Errorf("%w: default role %s: %v", auth.ErrInternalInconsistency, s.security.DefaultRole, err)
			}
			roleIDs = []string{role.ID}
		} else if err := ensureRoles(ctx, repos, roleIDs); err != nil {
			return err
		}

		if err := repos.Users.Create(ctx, user); err != nil {
			return err
		}
		if err := repos.Users.AddRoles(ctx, user.ID, roleIDs...); err != nil {
			return err
		}
		return repos.AuthProviders.Create(ctx, &models.AuthProvider{
			UserID:         user.ID,
			ProviderName:   auth.ProviderInternal,
			ProviderUserID: user.ID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", email, err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"staff":      user.IsStaff,
		"super_user": user.IsSuperUser,
		"roles":      len(roleIDs),
	}).Info("user created")
	return user, nil
}

// AssignUserRoles implements Service.
func (s *iamService) AssignUserRoles(ctx context.Context, userID string, roleIDs []string) error {
	ids := uniqueSorted(roleIDs)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repos := repository.New(tx)
		if _, err := repos.Users.GetByID(ctx, userID); err != nil {
			return err
		}
		if err := ensureRoles(ctx, repos, ids); err != nil {
			return err
		}
		return repos.Users.AddRoles(ctx, userID, ids...)
	})
	if err != nil {
		return fmt.Errorf("assign roles to %s: %w", userID, err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "roles": len(ids)}).Info("roles assigned")
	return nil
}

// GrantUserPermissions implements Service.
func (s *iamService) GrantUserPermissions(ctx context.Context, userID string, permissionIDs []string) error {
	ids := uniqueSorted(permissionIDs)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repos := repository.New(tx)
		if _, err := repos.Users.GetByID(ctx, userID); err != nil {
			return err
		}
		if err := ensurePermissions(ctx, repos, ids); err != nil {
			return err
		}
		return repos.Users.AddPermissions(ctx, userID, ids...)
	})
	if err != nil {
		return fmt.Errorf("grant permissions to %s: %w", userID, err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "permissions": len(ids)}).Info("permissions granted")
	return nil
}

// SetUserActive implements Service.
func (s *iamService) SetUserActive(ctx context.Context, userID string, active bool) error {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.IsActive = active
	if err := s.repos.Users.Update(ctx, user, "is_active"); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "active": active}).Info("user activation changed")
	return nil
}

// GetUserByEmail implements Service.
func (s *iamService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repos.Users.GetByEmail(ctx, email)
}

// PurgeRevokedTokens implements Service.
func (s *iamService) PurgeRevokedTokens(ctx context.Context) (int64, error) {
	n, err := s.repos.RevokedTokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", err)
	}
	return n, nil
}
