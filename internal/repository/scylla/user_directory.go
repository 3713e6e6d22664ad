package scylla

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"access-service/internal/models"
	"access-service/internal/util"
)

const (
	selectUserByID = `SELECT user_id, email, name, created_at FROM users_by_id WHERE user_id = ?`

	selectUserIDByEmail = `SELECT user_id FROM users_by_email WHERE email = ?`
)

// UserDirectory resolves users from the platform's user tables. The access
// core only reads; writes belong to the account service.
type UserDirectory struct {
	client *ScyllaClient
}

func NewUserDirectory(client *ScyllaClient) *UserDirectory {
	return &UserDirectory{client: client}
}

func (d *UserDirectory) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user := &models.User{}

	query := d.client.Session.Query(selectUserByID, userID).Idempotent(true)
	err := d.client.ScanWithRetry(ctx, query, &user.UserID, &user.Email, &user.Name, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, models.ErrUserNotFound
		}
		util.Error("Failed to get user by ID", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}

func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var userID string

	query := d.client.Session.Query(selectUserIDByEmail, normalizeEmail(email)).Idempotent(true)
	if err := d.client.ScanWithRetry(ctx, query, &userID); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, models.ErrUserNotFound
		}
		util.Error("Failed to get user by email", zap.Error(err))
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return d.GetUser(ctx, userID)
}

// users_by_email is keyed by the lowercased address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
