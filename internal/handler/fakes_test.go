package handler

import (
	"context"

	"github.com/agentdesk/agentdesk/internal/agentloop"
	"github.com/agentdesk/agentdesk/internal/mcpprobe"
	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/internal/service"
)

type fakeAuthService struct {
	result    *service.SessionResult
	err       error
	authCtx   *model.AuthContext
	signedOut []string
	lastInput service.RegisterInput
	lastIP    string
}

func (f *fakeAuthService) Register(_ context.Context, input service.RegisterInput, client service.ClientInfo) (*service.SessionResult, error) {
	f.lastInput = input
	f.lastIP = client.IP
	return f.result, f.err
}

func (f *fakeAuthService) SignIn(_ context.Context, _, _ string, client service.ClientInfo) (*service.SessionResult, error) {
	f.lastIP = client.IP
	return f.result, f.err
}

func (f *fakeAuthService) SignOut(_ context.Context, sessionID string) error {
	f.signedOut = append(f.signedOut, sessionID)
	return nil
}

func (f *fakeAuthService) Authenticate(_ context.Context, token string) (*model.AuthContext, error) {
	if f.authCtx == nil || token != "valid-token" {
		return nil, service.ErrUnauthenticated
	}
	return f.authCtx, nil
}

func (f *fakeAuthService) CurrentSession(_ context.Context, ac *model.AuthContext) (*service.SessionInfo, error) {
	if ac == nil {
		return nil, service.ErrUnauthenticated
	}
	return &service.SessionInfo{User: &model.User{ID: ac.UserID}, ExpiresAt: ac.ExpiresAt}, nil
}

type fakeUserService struct {
	user        *model.User
	projects    []*model.Project
	err         error
	deleted     []string
	lastUpdate  service.UpdateProfileInput
	lastLimit   int
	unlinkedIDs []string
}

func (f *fakeUserService) GetProfile(_ context.Context, _ string) (*model.User, error) {
	return f.user, f.err
}

func (f *fakeUserService) UpdateProfile(_ context.Context, _ string, input service.UpdateProfileInput) (*model.User, error) {
	f.lastUpdate = input
	return f.user, f.err
}

func (f *fakeUserService) DeleteProfile(_ context.Context, userID string) error {
	f.deleted = append(f.deleted, userID)
	return f.err
}

func (f *fakeUserService) ListProjects(_ context.Context, _ string) ([]*model.Project, error) {
	return f.projects, f.err
}

func (f *fakeUserService) ListAccounts(_ context.Context, userID string) ([]*model.Account, error) {
	return []*model.Account{{ID: "a1", UserID: userID, PasswordHash: "$argon2id$secret"}}, f.err
}

func (f *fakeUserService) UnlinkAccount(_ context.Context, _, accountID string) error {
	f.unlinkedIDs = append(f.unlinkedIDs, accountID)
	return f.err
}

func (f *fakeUserService) ListActivity(_ context.Context, _ string, limit int) ([]*model.ActivityEvent, error) {
	f.lastLimit = limit
	return []*model.ActivityEvent{}, f.err
}

// fakeProjectService keeps projects per owner.
type fakeProjectService struct {
	projects   map[string]*model.Project
	lastCreate service.CreateProjectInput
}

func newFakeProjectService() *fakeProjectService {
	return &fakeProjectService{projects: map[string]*model.Project{
		"p1": {ID: "p1", UserID: "u1", Name: "Demo"},
	}}
}

func (f *fakeProjectService) owned(userID, id string) (*model.Project, error) {
	p, ok := f.projects[id]
	if !ok || p.UserID != userID {
		return nil, service.ErrProjectNotFound
	}
	return p, nil
}

func (f *fakeProjectService) List(_ context.Context, userID string) ([]*model.Project, error) {
	out := []*model.Project{}
	for _, p := range f.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProjectService) Create(_ context.Context, userID string, input service.CreateProjectInput) (*model.Project, error) {
	f.lastCreate = input
	if input.Name == "" {
		return nil, &service.ValidationError{Field: "name", Message: "is required"}
	}
	p := &model.Project{ID: "p-new", UserID: userID, Name: input.Name}
	f.projects[p.ID] = p
	return p, nil
}

func (f *fakeProjectService) Get(_ context.Context, userID, id string) (*model.Project, error) {
	return f.owned(userID, id)
}

func (f *fakeProjectService) Update(_ context.Context, userID, id string, input service.UpdateProjectInput) (*model.Project, error) {
	p, err := f.owned(userID, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		p.Name = *input.Name
	}
	return p, nil
}

func (f *fakeProjectService) Delete(_ context.Context, userID, id string) error {
	if _, err := f.owned(userID, id); err != nil {
		return err
	}
	delete(f.projects, id)
	return nil
}

func (f *fakeProjectService) GetMetadata(_ context.Context, userID, id string) (*model.ProjectMetadata, error) {
	if _, err := f.owned(userID, id); err != nil {
		return nil, err
	}
	return &model.ProjectMetadata{ProjectID: id, Tags: []string{}}, nil
}

func (f *fakeProjectService) PutMetadata(_ context.Context, userID, id string, input service.MetadataInput) (*model.ProjectMetadata, error) {
	if _, err := f.owned(userID, id); err != nil {
		return nil, err
	}
	return &model.ProjectMetadata{ProjectID: id, Framework: input.Framework, Tags: input.Tags}, nil
}

type fakeConversationService struct {
	conv         *model.Conversation
	view         *service.LoopView
	err          error
	lastDecision agentloop.Decision
	lastMessages []model.Message
}

func (f *fakeConversationService) List(_ context.Context, _, _ string) ([]*model.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*model.Conversation{f.conv}, nil
}

func (f *fakeConversationService) Create(_ context.Context, _, _ string, input service.CreateConversationInput) (*model.Conversation, error) {
	f.lastMessages = input.Messages
	return f.conv, f.err
}

func (f *fakeConversationService) Get(_ context.Context, _, _, _ string) (*model.Conversation, error) {
	return f.conv, f.err
}

func (f *fakeConversationService) Delete(_ context.Context, _, _, _ string) error {
	return f.err
}

func (f *fakeConversationService) AppendMessages(_ context.Context, _, _, _ string, messages []model.Message) (*model.Conversation, error) {
	f.lastMessages = messages
	return f.conv, f.err
}

func (f *fakeConversationService) LoopState(_ context.Context, _, _, _ string) (*service.LoopView, error) {
	return f.view, f.err
}

func (f *fakeConversationService) ApproveLoop(_ context.Context, _, _, _ string, decision agentloop.Decision) (*service.LoopView, error) {
	f.lastDecision = decision
	return f.view, f.err
}

func (f *fakeConversationService) ResetLoop(_ context.Context, _, _, _ string) (*service.LoopView, error) {
	return f.view, f.err
}

type fakeMCPService struct {
	cfg        *model.MCPConfig
	probe      *mcpprobe.Result
	err        error
	lastCreate service.CreateMCPConfigInput
	lastUpdate service.UpdateMCPConfigInput
}

func (f *fakeMCPService) List(_ context.Context, _, _ string) ([]*model.MCPConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*model.MCPConfig{f.cfg}, nil
}

func (f *fakeMCPService) Create(_ context.Context, _, _ string, input service.CreateMCPConfigInput) (*model.MCPConfig, error) {
	f.lastCreate = input
	return f.cfg, f.err
}

func (f *fakeMCPService) Update(_ context.Context, _, _, _ string, input service.UpdateMCPConfigInput) (*model.MCPConfig, error) {
	f.lastUpdate = input
	return f.cfg, f.err
}

func (f *fakeMCPService) Delete(_ context.Context, _, _, _ string) error {
	return f.err
}

func (f *fakeMCPService) Probe(_ context.Context, _, _, _ string) (*mcpprobe.Result, error) {
	return f.probe, f.err
}
