package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/repository"
)

// UserService handles profile and linked-account operations.
type UserService struct {
	users    UserStore
	projects ProjectStore
	activity ActivityStore
	revoker  SessionRevoker
	events   ActivityPublisher
}

// NewUserService creates a new UserService.
func NewUserService(users UserStore, projects ProjectStore, activity ActivityStore, revoker SessionRevoker, events ActivityPublisher) *UserService {
	return &UserService{
		users:    users,
		projects: projects,
		activity: activity,
		revoker:  revoker,
		events:   events,
	}
}

// GetProfile returns the user's profile.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfileInput defines input for updating a profile.
// Nil fields are left unchanged; an empty image clears it.
type UpdateProfileInput struct {
	Name  *string
	Image *string
}

// UpdateProfile updates name and image of the user.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*model.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	name := user.Name
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
		if err := validateUserName(name); err != nil {
			return nil, err
		}
	}

	image := user.Image
	if input.Image != nil {
		image = strings.TrimSpace(*input.Image)
		if err := validateImageURL(image); err != nil {
			return nil, err
		}
	}

	updated, err := s.users.UpdateUserProfile(ctx, userID, name, image)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	publish(s.events, userID, "", model.ActionProfileUpdated, map[string]bool{
		"name":  input.Name != nil,
		"image": input.Image != nil,
	})
	return updated, nil
}

// DeleteProfile revokes every session of the user and deletes the user.
// Projects, conversations and MCP configs cascade.
func (s *UserService) DeleteProfile(ctx context.Context, userID string) error {
	if s.revoker != nil {
		if _, err := s.revoker.RevokeUserSessions(ctx, userID); err != nil {
			return err
		}
	}

	if err := s.users.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ListProjects returns the user's projects with metadata and conversation counts.
func (s *UserService) ListProjects(ctx context.Context, userID string) ([]*model.Project, error) {
	return s.projects.ListProjectsByUserID(ctx, userID)
}

// ListAccounts returns the accounts linked to the user.
func (s *UserService) ListAccounts(ctx context.Context, userID string) ([]*model.Account, error) {
	return s.users.ListAccountsByUserID(ctx, userID)
}

// UnlinkAccount removes a linked account. The last account cannot be removed.
func (s *UserService) UnlinkAccount(ctx context.Context, userID, accountID string) error {
	err := s.users.DeleteAccount(ctx, userID, accountID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, repository.ErrLastAccount):
		return ErrLastAccount
	default:
		return err
	}
}

// ListActivity returns the user's most recent activity events.
func (s *UserService) ListActivity(ctx context.Context, userID string, limit int) ([]*model.ActivityEvent, error) {
	return s.activity.ListByUser(ctx, userID, repository.ClampActivityLimit(limit))
}
