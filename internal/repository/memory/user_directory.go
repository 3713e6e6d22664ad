package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"access-service/internal/models"
)

// UserDirectory is a seeded, read-mostly user lookup for development and
// tests.
type UserDirectory struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
}

func NewUserDirectory(users ...*models.User) *UserDirectory {
	d := &UserDirectory{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

// ParseSeed turns "id:email:name" entries into users.
func ParseSeed(entries []string) ([]*models.User, error) {
	users := make([]*models.User, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid directory seed entry %q", entry)
		}
		u := &models.User{UserID: parts[0], Email: parts[1], CreatedAt: time.Now().UTC()}
		if len(parts) == 3 {
			u.Name = parts[2]
		}
		users = append(users, u)
	}
	return users, nil
}

func (d *UserDirectory) Put(u *models.User) {
	clone := *u

	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[u.UserID] = &clone
	d.byEmail[strings.ToLower(u.Email)] = u.UserID
}

func (d *UserDirectory) GetUser(ctx context.Context, userID string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, exists := d.byID[userID]
	if !exists {
		return nil, models.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	d.mu.RLock()
	id, exists := d.byEmail[strings.ToLower(email)]
	d.mu.RUnlock()
	if !exists {
		return nil, models.ErrUserNotFound
	}
	return d.GetUser(ctx, id)
}
