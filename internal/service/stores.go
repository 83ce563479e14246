package service

import (
	"context"

	"github.com/agentdesk/agentdesk/internal/activity"
	"github.com/agentdesk/agentdesk/internal/mcpprobe"
	"github.com/agentdesk/agentdesk/internal/model"
)

// UserStore persists users and their linked accounts.
type UserStore interface {
	CreateUserWithAccount(ctx context.Context, user *model.User, account *model.Account) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUserProfile(ctx context.Context, id, name, image string) (*model.User, error)
	DeleteUser(ctx context.Context, id string) error
	GetCredentialsAccount(ctx context.Context, email string) (*model.Account, error)
	ListAccountsByUserID(ctx context.Context, userID string) ([]*model.Account, error)
	DeleteAccount(ctx context.Context, userID, accountID string) error
}

// SessionStore persists login sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSessionByID(ctx context.Context, id string) (*model.Session, error)
	RevokeSession(ctx context.Context, id string) error
	RevokeUserSessions(ctx context.Context, userID string) ([]string, error)
}

// SessionCache caches validated sessions.
type SessionCache interface {
	GetSession(ctx context.Context, sessionID string) (*model.AuthContext, error)
	SetSession(ctx context.Context, auth *model.AuthContext) error
	DeleteSessions(ctx context.Context, sessionIDs ...string) error
}

// ProjectStore persists projects and their metadata.
// Reads and writes are scoped to the owning user.
type ProjectStore interface {
	CreateProject(ctx context.Context, project *model.Project) error
	GetProjectForUser(ctx context.Context, id, userID string) (*model.Project, error)
	ListProjectsByUserID(ctx context.Context, userID string) ([]*model.Project, error)
	UpdateProject(ctx context.Context, project *model.Project) error
	DeleteProject(ctx context.Context, id, userID string) error
	GetProjectMetadata(ctx context.Context, projectID string) (*model.ProjectMetadata, error)
	UpsertProjectMetadata(ctx context.Context, metadata *model.ProjectMetadata) error
}

// ProjectOwnership resolves a project visible to a user.
type ProjectOwnership interface {
	GetProjectForUser(ctx context.Context, id, userID string) (*model.Project, error)
}

// ConversationStore persists conversations of a project.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	ListConversations(ctx context.Context, projectID string) ([]*model.Conversation, error)
	GetConversation(ctx context.Context, projectID, id string) (*model.Conversation, error)
	MutateConversation(ctx context.Context, projectID, id string, fn func(conv *model.Conversation) error) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, projectID, id string) error
}

// MCPConfigStore persists MCP connection configs of a project.
type MCPConfigStore interface {
	CreateMCPConfig(ctx context.Context, cfg *model.MCPConfig) error
	ListMCPConfigs(ctx context.Context, projectID string) ([]*model.MCPConfig, error)
	GetMCPConfig(ctx context.Context, projectID, id string) (*model.MCPConfig, error)
	UpdateMCPConfig(ctx context.Context, cfg *model.MCPConfig) error
	DeleteMCPConfig(ctx context.Context, projectID, id string) error
}

// ActivityStore reads persisted activity events.
type ActivityStore interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.ActivityEvent, error)
}

// ActivityPublisher records user mutations asynchronously.
type ActivityPublisher interface {
	PublishAsync(event activity.Event)
}

// URLValidator checks MCP server URLs before they are stored.
type URLValidator interface {
	ValidateServerURL(ctx context.Context, serverURL string) error
}

// MCPProber performs an MCP handshake against a server.
type MCPProber interface {
	Probe(ctx context.Context, serverURL, token string) (*mcpprobe.Result, error)
}

// SessionRevoker revokes every session of a user.
type SessionRevoker interface {
	RevokeUserSessions(ctx context.Context, userID string) (int, error)
}

func publish(p ActivityPublisher, userID, projectID, action string, detail any) {
	if p == nil {
		return
	}
	p.PublishAsync(activity.NewEvent(userID, projectID, action, detail))
}
