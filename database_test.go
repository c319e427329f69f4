package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB points the global DB at a throwaway sqlite file.
func setupTestDB(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, InitDatabase(context.Background(), path))
	t.Cleanup(CloseDatabase)
}

func TestGuildConfigRoundTrip(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	guildID := snowflake.ID(123456789012345678)

	t.Run("unknown guild yields defaults", func(t *testing.T) {
		cfg, err := GetGuildConfig(ctx, guildID)
		require.NoError(t, err)
		assert.Equal(t, snowflake.ID(0), cfg.AutoRoleID)
		assert.Equal(t, snowflake.ID(0), cfg.VerifyRoleID)
		assert.Equal(t, 10, cfg.VerifyTimeoutMinutes)
	})

	t.Run("fields persist independently", func(t *testing.T) {
		require.NoError(t, SetGuildAutoRole(ctx, guildID, snowflake.ID(111)))
		require.NoError(t, SetGuildVerification(ctx, guildID, snowflake.ID(222), 25))
		require.NoError(t, SetGuildWelcomeChannels(ctx, guildID, snowflake.ID(333), snowflake.ID(444)))
		require.NoError(t, SetGuildLoggingChannel(ctx, guildID, snowflake.ID(555)))

		cfg, err := GetGuildConfig(ctx, guildID)
		require.NoError(t, err)
		assert.Equal(t, snowflake.ID(111), cfg.AutoRoleID)
		assert.Equal(t, snowflake.ID(222), cfg.VerifyRoleID)
		assert.Equal(t, 25, cfg.VerifyTimeoutMinutes)
		assert.Equal(t, snowflake.ID(333), cfg.WelcomeChannelID)
		assert.Equal(t, snowflake.ID(444), cfg.GoodbyeChannelID)
		assert.Equal(t, snowflake.ID(555), cfg.LoggingChannelID)
	})

	t.Run("updates overwrite in place", func(t *testing.T) {
		require.NoError(t, SetGuildAutoRole(ctx, guildID, snowflake.ID(999)))
		cfg, err := GetGuildConfig(ctx, guildID)
		require.NoError(t, err)
		assert.Equal(t, snowflake.ID(999), cfg.AutoRoleID)
		// Other fields untouched
		assert.Equal(t, snowflake.ID(222), cfg.VerifyRoleID)
	})
}

func TestWarningsStore(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	guildID := snowflake.ID(1111)
	userID := snowflake.ID(2222)

	t.Run("empty store", func(t *testing.T) {
		warnings, err := GetWarnings(ctx, guildID, userID)
		require.NoError(t, err)
		assert.Empty(t, warnings)

		count, err := CountWarnings(ctx, guildID, userID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("add and list", func(t *testing.T) {
		w := &Warning{
			GuildID:     guildID,
			UserID:      userID,
			Reason:      "spamming",
			Moderator:   "mod",
			ModeratorID: snowflake.ID(3333),
		}
		require.NoError(t, AddWarning(ctx, w))
		assert.NotZero(t, w.ID)

		require.NoError(t, AddWarning(ctx, &Warning{
			GuildID: guildID, UserID: userID,
			Reason: "still spamming", Moderator: "mod", ModeratorID: snowflake.ID(3333),
		}))

		warnings, err := GetWarnings(ctx, guildID, userID)
		require.NoError(t, err)
		require.Len(t, warnings, 2)
		assert.Equal(t, userID, warnings[0].UserID)
		assert.Equal(t, snowflake.ID(3333), warnings[0].ModeratorID)

		count, err := CountWarnings(ctx, guildID, userID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("warnings are scoped per guild", func(t *testing.T) {
		count, err := CountWarnings(ctx, snowflake.ID(9999), userID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("clear removes all", func(t *testing.T) {
		cleared, err := ClearWarnings(ctx, guildID, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), cleared)

		count, err := CountWarnings(ctx, guildID, userID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestBotConfigStore(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	val, err := GetBotConfig(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, SetBotConfig(ctx, "last_reg_mode", "guild"))
	require.NoError(t, SetBotConfig(ctx, "last_reg_mode", "global"))

	val, err = GetBotConfig(ctx, "last_reg_mode")
	require.NoError(t, err)
	assert.Equal(t, "global", val)
}
