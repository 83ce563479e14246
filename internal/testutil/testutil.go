package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/agentdesk/agentdesk/internal/model"
	"github.com/agentdesk/agentdesk/migrations"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

// schemaLockID keys the advisory lock that serializes packages sharing the
// test database.
const schemaLockID int64 = 0x61676e74

// FreshDatabase holds an advisory lock on pool for the rest of the test and
// rebuilds the schema from the embedded migrations.
func FreshDatabase(t testing.TB, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", schemaLockID); err != nil {
		conn.Release()
		t.Fatalf("lock test database: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", schemaLockID)
		conn.Release()
	})

	if err := ResetSchema(ctx, pool); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
}

// ResetSchema runs every down migration newest first, then every up migration.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ups, downs, err := migrationFiles()
	if err != nil {
		return err
	}
	for _, name := range slices.Backward(downs) {
		if err := execFile(ctx, pool, name); err != nil {
			return err
		}
	}
	for _, name := range ups {
		if err := execFile(ctx, pool, name); err != nil {
			return err
		}
	}
	return nil
}

func migrationFiles() (ups, downs []string, err error) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return nil, nil, fmt.Errorf("read migrations: %w", err)
	}
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups = append(ups, e.Name())
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs = append(downs, e.Name())
		}
	}
	slices.Sort(ups)
	slices.Sort(downs)
	return ups, downs, nil
}

func execFile(ctx context.Context, pool *pgxpool.Pool, name string) error {
	sql, err := fs.ReadFile(migrations.FS, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// NewTestUser creates a test user with a unique email.
func NewTestUser(t testing.TB) *model.User {
	t.Helper()
	now := time.Now().UTC()
	id := UniqueID("user")
	return &model.User{
		ID:        id,
		Email:     id + "@example.com",
		Name:      "Test User",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestCredentialsAccount creates a password account for user.
func NewTestCredentialsAccount(t testing.TB, user *model.User, passwordHash string) *model.Account {
	t.Helper()
	return &model.Account{
		ID:                UniqueID("acct"),
		UserID:            user.ID,
		Type:              model.AccountTypeCredentials,
		Provider:          model.ProviderCredentials,
		ProviderAccountID: user.Email,
		PasswordHash:      passwordHash,
		CreatedAt:         time.Now().UTC(),
	}
}

// NewTestProject creates a test project owned by userID.
func NewTestProject(t testing.TB, userID string) *model.Project {
	t.Helper()
	now := time.Now().UTC()
	return &model.Project{
		ID:          UniqueID("proj"),
		UserID:      userID,
		Name:        "Test Project",
		Description: "created by tests",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewTestConversation creates an empty conversation in project.
func NewTestConversation(t testing.TB, project *model.Project) *model.Conversation {
	t.Helper()
	now := time.Now().UTC()
	return &model.Conversation{
		ID:        UniqueID("conv"),
		ProjectID: project.ID,
		UserID:    project.UserID,
		Title:     "Test Conversation",
		Messages:  []model.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTextMessage creates a single-part text message.
func NewTextMessage(role, text string) model.Message {
	return model.Message{
		ID:    UniqueID("msg"),
		Role:  role,
		Parts: []model.MessagePart{{Type: "text", Text: text}},
	}
}

// UniqueID returns prefix joined to a fresh lowercase ULID.
func UniqueID(prefix string) string {
	return prefix + "_" + strings.ToLower(ulid.Make().String())
}
