package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agentdesk/agentdesk/internal/activity"
	"github.com/agentdesk/agentdesk/internal/mcpprobe"
	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/repository"
)

// memStore is an in-memory implementation of every store interface.
type memStore struct {
	mu            sync.Mutex
	users         map[string]*model.User
	accounts      map[string]*model.Account
	sessions      map[string]*model.Session
	projects      map[string]*model.Project
	metadata      map[string]*model.ProjectMetadata
	conversations map[string]*model.Conversation
	mcpConfigs    map[string]*model.MCPConfig
	activity      []*model.ActivityEvent
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]*model.User),
		accounts:      make(map[string]*model.Account),
		sessions:      make(map[string]*model.Session),
		projects:      make(map[string]*model.Project),
		metadata:      make(map[string]*model.ProjectMetadata),
		conversations: make(map[string]*model.Conversation),
		mcpConfigs:    make(map[string]*model.MCPConfig),
	}
}

func (m *memStore) CreateUserWithAccount(_ context.Context, user *model.User, account *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrEmailExists
		}
	}
	cu, ca := *user, *account
	m.users[user.ID] = &cu
	m.accounts[account.ID] = &ca
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cu := *u
	return &cu, nil
}

func (m *memStore) UpdateUserProfile(_ context.Context, id, name, image string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u.Name, u.Image, u.UpdatedAt = name, image, time.Now().UTC()
	cu := *u
	return &cu, nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(m.users, id)
	for k, a := range m.accounts {
		if a.UserID == id {
			delete(m.accounts, k)
		}
	}
	for k, p := range m.projects {
		if p.UserID == id {
			delete(m.projects, k)
		}
	}
	return nil
}

func (m *memStore) GetCredentialsAccount(_ context.Context, email string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Provider == model.ProviderCredentials && a.ProviderAccountID == email {
			ca := *a
			return &ca, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (m *memStore) ListAccountsByUserID(_ context.Context, userID string) ([]*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Account, 0)
	for _, a := range m.accounts {
		if a.UserID == userID {
			ca := *a
			out = append(out, &ca)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteAccount(_ context.Context, userID, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok || a.UserID != userID {
		return repository.ErrAccountNotFound
	}
	count := 0
	for _, other := range m.accounts {
		if other.UserID == userID {
			count++
		}
	}
	if count == 1 {
		return repository.ErrLastAccount
	}
	delete(m.accounts, accountID)
	return nil
}

func (m *memStore) CreateSession(_ context.Context, session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs := *session
	m.sessions[session.ID] = &cs
	return nil
}

func (m *memStore) GetSessionByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cs := *s
	return &cs, nil
}

func (m *memStore) RevokeSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.RevokedAt != nil {
		return repository.ErrSessionNotFound
	}
	now := time.Now()
	s.RevokedAt = &now
	return nil
}

func (m *memStore) RevokeUserSessions(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	ids := make([]string, 0)
	for _, s := range m.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func (m *memStore) CreateProject(_ context.Context, project *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[project.UserID]; !ok {
		return repository.ErrUserNotFound
	}
	cp := *project
	cp.Metadata = nil
	m.projects[project.ID] = &cp
	if project.Metadata != nil {
		cm := *project.Metadata
		m.metadata[project.ID] = &cm
	}
	return nil
}

func (m *memStore) GetProjectForUser(_ context.Context, id, userID string) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok || p.UserID != userID {
		return nil, repository.ErrProjectNotFound
	}
	return m.projectView(p), nil
}

func (m *memStore) projectView(p *model.Project) *model.Project {
	cp := *p
	if md, ok := m.metadata[p.ID]; ok {
		cm := *md
		cp.Metadata = &cm
	}
	for _, c := range m.conversations {
		if c.ProjectID == p.ID {
			cp.ConversationCount++
		}
	}
	return &cp
}

func (m *memStore) ListProjectsByUserID(_ context.Context, userID string) ([]*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Project, 0)
	for _, p := range m.projects {
		if p.UserID == userID {
			out = append(out, m.projectView(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) UpdateProject(_ context.Context, project *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[project.ID]
	if !ok || p.UserID != project.UserID {
		return repository.ErrProjectNotFound
	}
	p.Name, p.Description, p.UpdatedAt = project.Name, project.Description, time.Now().UTC()
	project.UpdatedAt = p.UpdatedAt
	return nil
}

func (m *memStore) DeleteProject(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok || p.UserID != userID {
		return repository.ErrProjectNotFound
	}
	delete(m.projects, id)
	delete(m.metadata, id)
	for k, c := range m.conversations {
		if c.ProjectID == id {
			delete(m.conversations, k)
		}
	}
	for k, c := range m.mcpConfigs {
		if c.ProjectID == id {
			delete(m.mcpConfigs, k)
		}
	}
	return nil
}

func (m *memStore) GetProjectMetadata(_ context.Context, projectID string) (*model.ProjectMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md, ok := m.metadata[projectID]
	if !ok {
		return nil, repository.ErrMetadataNotFound
	}
	cm := *md
	return &cm, nil
}

func (m *memStore) UpsertProjectMetadata(_ context.Context, metadata *model.ProjectMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cm := *metadata
	m.metadata[metadata.ProjectID] = &cm
	return nil
}

func (m *memStore) CreateConversation(_ context.Context, conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[conv.ProjectID]; !ok {
		return repository.ErrProjectNotFound
	}
	conv.MessageCount = len(conv.Messages)
	m.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (m *memStore) ListConversations(_ context.Context, projectID string) ([]*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Conversation, 0)
	for _, c := range m.conversations {
		if c.ProjectID == projectID {
			summary := *c
			summary.MessageCount = len(c.Messages)
			summary.Messages = nil
			out = append(out, &summary)
		}
	}
	return out, nil
}

func (m *memStore) GetConversation(_ context.Context, projectID, id string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok || c.ProjectID != projectID {
		return nil, repository.ErrConversationNotFound
	}
	return cloneConversation(c), nil
}

func (m *memStore) MutateConversation(_ context.Context, projectID, id string, fn func(conv *model.Conversation) error) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok || c.ProjectID != projectID {
		return nil, repository.ErrConversationNotFound
	}
	working := cloneConversation(c)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()
	working.MessageCount = len(working.Messages)
	m.conversations[id] = cloneConversation(working)
	return working, nil
}

func (m *memStore) DeleteConversation(_ context.Context, projectID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok || c.ProjectID != projectID {
		return repository.ErrConversationNotFound
	}
	delete(m.conversations, id)
	return nil
}

func cloneConversation(c *model.Conversation) *model.Conversation {
	cc := *c
	cc.Messages = append([]model.Message(nil), c.Messages...)
	return &cc
}

func (m *memStore) CreateMCPConfig(_ context.Context, cfg *model.MCPConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[cfg.ProjectID]; !ok {
		return repository.ErrProjectNotFound
	}
	for _, other := range m.mcpConfigs {
		if other.ProjectID == cfg.ProjectID && other.Name == cfg.Name {
			return repository.ErrMCPConfigExists
		}
	}
	cc := *cfg
	m.mcpConfigs[cfg.ID] = &cc
	return nil
}

func (m *memStore) ListMCPConfigs(_ context.Context, projectID string) ([]*model.MCPConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.MCPConfig, 0)
	for _, c := range m.mcpConfigs {
		if c.ProjectID == projectID {
			cc := *c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetMCPConfig(_ context.Context, projectID, id string) (*model.MCPConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.mcpConfigs[id]
	if !ok || c.ProjectID != projectID {
		return nil, repository.ErrMCPConfigNotFound
	}
	cc := *c
	return &cc, nil
}

func (m *memStore) UpdateMCPConfig(_ context.Context, cfg *model.MCPConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mcpConfigs[cfg.ID]; !ok {
		return repository.ErrMCPConfigNotFound
	}
	for _, other := range m.mcpConfigs {
		if other.ID != cfg.ID && other.ProjectID == cfg.ProjectID && other.Name == cfg.Name {
			return repository.ErrMCPConfigExists
		}
	}
	cc := *cfg
	m.mcpConfigs[cfg.ID] = &cc
	return nil
}

func (m *memStore) DeleteMCPConfig(_ context.Context, projectID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.mcpConfigs[id]
	if !ok || c.ProjectID != projectID {
		return repository.ErrMCPConfigNotFound
	}
	delete(m.mcpConfigs, id)
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID string, limit int) ([]*model.ActivityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.ActivityEvent, 0)
	for i := len(m.activity) - 1; i >= 0 && len(out) < limit; i-- {
		if m.activity[i].UserID == userID {
			out = append(out, m.activity[i])
		}
	}
	return out, nil
}

// memCache is an in-memory SessionCache.
type memCache struct {
	mu      sync.Mutex
	entries map[string]*model.AuthContext
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*model.AuthContext)}
}

func (c *memCache) GetSession(_ context.Context, sessionID string) (*model.AuthContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ac, ok := c.entries[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *ac
	return &cp, nil
}

func (c *memCache) SetSession(_ context.Context, ac *model.AuthContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *ac
	c.entries[ac.SessionID] = &cp
	return nil
}

func (c *memCache) DeleteSessions(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
	}
	return nil
}

func (c *memCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// recordingPublisher captures published activity events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []activity.Event
}

func (p *recordingPublisher) PublishAsync(event activity.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Action
	}
	return out
}

// fakeProber records the last probe and returns a canned result.
type fakeProber struct {
	result    *mcpprobe.Result
	err       error
	lastURL   string
	lastToken string
}

func (p *fakeProber) Probe(_ context.Context, serverURL, token string) (*mcpprobe.Result, error) {
	p.lastURL, p.lastToken = serverURL, token
	return p.result, p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedUser inserts a user directly into the store.
func seedUser(m *memStore, id string) *model.User {
	u := &model.User{ID: id, Email: id + "@example.com", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.users[id] = u
	return u
}

// seedProject inserts a project owned by userID directly into the store.
func seedProject(m *memStore, id, userID string) *model.Project {
	p := &model.Project{ID: id, UserID: userID, Name: "Project " + id, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.projects[id] = p
	return p
}
