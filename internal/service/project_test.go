package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/agentdesk/agentdesk/internal/model"
)

func newProjectFixture(t *testing.T) (*ProjectService, *memStore, *recordingPublisher) {
	t.Helper()
	store := newMemStore()
	seedUser(store, "u1")
	seedUser(store, "u2")
	events := &recordingPublisher{}
	return NewProjectService(store, events), store, events
}

func TestProjectService_Create(t *testing.T) {
	t.Parallel()
	svc, store, events := newProjectFixture(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "u1", CreateProjectInput{
		Name:        "  Todo App ",
		Description: "tasks",
		Metadata: &MetadataInput{
			Framework: " nextjs ",
			Tags:      []string{"web", " web ", "", "demo"},
			Settings:  json.RawMessage(`{"theme":"dark"}`),
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if project.Name != "Todo App" {
		t.Errorf("name = %q, want trimmed", project.Name)
	}
	md := store.metadata[project.ID]
	if md == nil {
		t.Fatal("metadata not stored")
	}
	if md.Framework != "nextjs" {
		t.Errorf("framework = %q", md.Framework)
	}
	if strings.Join(md.Tags, ",") != "web,demo" {
		t.Errorf("tags = %v, want de-duplicated", md.Tags)
	}
	if got := events.actions(); len(got) != 1 || got[0] != model.ActionProjectCreated {
		t.Errorf("activity = %v", got)
	}
}

func TestProjectService_CreateValidation(t *testing.T) {
	t.Parallel()

	manyTags := make([]string, maxTags+1)
	for i := range manyTags {
		manyTags[i] = strings.Repeat("t", i+1)
	}

	tests := []struct {
		name  string
		input CreateProjectInput
		field string
	}{
		{"blank name", CreateProjectInput{Name: "   "}, "name"},
		{"long name", CreateProjectInput{Name: strings.Repeat("n", maxProjectNameLength+1)}, "name"},
		{"long description", CreateProjectInput{Name: "ok", Description: strings.Repeat("d", maxDescriptionLength+1)}, "description"},
		{"too many tags", CreateProjectInput{Name: "ok", Metadata: &MetadataInput{Tags: manyTags}}, "tags"},
		{"long tag", CreateProjectInput{Name: "ok", Metadata: &MetadataInput{Tags: []string{strings.Repeat("t", maxTagLength+1)}}}, "tags"},
		{"settings not object", CreateProjectInput{Name: "ok", Metadata: &MetadataInput{Settings: json.RawMessage(`[1,2]`)}}, "settings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, _, _ := newProjectFixture(t)

			_, err := svc.Create(context.Background(), "u1", tt.input)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("field = %q, want %q", vErr.Field, tt.field)
			}
		})
	}
}

func TestProjectService_Ownership(t *testing.T) {
	t.Parallel()
	svc, _, _ := newProjectFixture(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "u1", CreateProjectInput{Name: "private"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	name := "stolen"
	if _, err := svc.Get(ctx, "u2", project.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("Get() error = %v", err)
	}
	if _, err := svc.Update(ctx, "u2", project.ID, UpdateProjectInput{Name: &name}); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("Update() error = %v", err)
	}
	if err := svc.Delete(ctx, "u2", project.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("Delete() error = %v", err)
	}
	if _, err := svc.GetMetadata(ctx, "u2", project.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("GetMetadata() error = %v", err)
	}

	list, err := svc.List(ctx, "u2")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("u2 sees %d projects, want 0", len(list))
	}
}

func TestProjectService_Update(t *testing.T) {
	t.Parallel()
	svc, _, _ := newProjectFixture(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "u1", CreateProjectInput{Name: "before", Description: "keep"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	name := " after "
	updated, err := svc.Update(ctx, "u1", project.ID, UpdateProjectInput{Name: &name})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != "after" || updated.Description != "keep" {
		t.Errorf("project = %+v", updated)
	}

	empty := ""
	if _, err := svc.Update(ctx, "u1", project.ID, UpdateProjectInput{Name: &empty}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank name error = %v", err)
	}
}

func TestProjectService_Metadata(t *testing.T) {
	t.Parallel()
	svc, _, _ := newProjectFixture(t)
	ctx := context.Background()

	project, err := svc.Create(ctx, "u1", CreateProjectInput{Name: "bare"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	md, err := svc.GetMetadata(ctx, "u1", project.ID)
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if md.ProjectID != project.ID || md.Tags == nil || len(md.Tags) != 0 {
		t.Errorf("default metadata = %+v", md)
	}

	_, err = svc.PutMetadata(ctx, "u1", project.ID, MetadataInput{Template: "blank", Tags: []string{"a"}})
	if err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}
	md, err = svc.GetMetadata(ctx, "u1", project.ID)
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if md.Template != "blank" || len(md.Tags) != 1 {
		t.Errorf("metadata = %+v", md)
	}
}
