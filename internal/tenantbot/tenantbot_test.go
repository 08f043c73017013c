package tenantbot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clonebot/internal/model"
	"clonebot/internal/platform"
	"clonebot/internal/platform/platformtest"
	"clonebot/internal/storage"
)

func command(userID int64, name string) platform.Update {
	return platform.Update{
		ChatID:    userID,
		MessageID: 1,
		UserID:    userID,
		Text:      "/" + name,
		Command:   name,
		Private:   true,
	}
}

func TestHandlerCommands(t *testing.T) {
	dir := storage.NewMemoryDirectory()
	session := platformtest.NewSession("child_bot", 1)
	handle := New(dir, "https://example.com/src", zap.NewNop()).
		Handler(model.Tenant{Handle: "@child_bot"}, session)
	ctx := context.Background()

	handle(ctx, command(10, "start"))
	handle(ctx, command(11, "start"))
	handle(ctx, command(10, "start"))
	handle(ctx, command(10, "users"))
	handle(ctx, command(10, "source"))

	replies := session.Replies()
	require.Len(t, replies, 5)
	assert.Equal(t, greeting, replies[0].Text)
	assert.Equal(t, "👥 Total Users: 2", replies[3].Text)
	assert.Contains(t, replies[4].Text, "https://example.com/src")
	assert.Equal(t, int64(10), replies[3].ChatID)

	users, err := dir.List(ctx, model.SetTotalUsers)
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "11"}, users)
}

func TestHandlerIgnoresNonCommandsAndGroups(t *testing.T) {
	session := platformtest.NewSession("child_bot", 1)
	handle := New(storage.NewMemoryDirectory(), "", zap.NewNop()).
		Handler(model.Tenant{Handle: "@child_bot"}, session)

	group := command(10, "users")
	group.Private = false
	handle(context.Background(), group)
	handle(context.Background(), platform.Update{ChatID: 10, UserID: 10, Text: "hello", Private: true})
	handle(context.Background(), command(10, "unknown"))

	assert.Empty(t, session.Replies())
}

func TestCommandTableNames(t *testing.T) {
	var names []string
	for _, c := range CommandTable.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"start", "users", "source"}, names)
}
