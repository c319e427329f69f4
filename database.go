package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
	"github.com/mattn/go-sqlite3"
)

// --- Phase 1: Configuration & Environment ---

type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	OwnerIDs     []string
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("DISCORD_TOKEN")
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	ownerIDsStr := os.Getenv("OWNER_IDS")
	var ownerIDs []string
	if ownerIDsStr != "" {
		ownerIDs = strings.Split(ownerIDsStr, ",")
		for i := range ownerIDs {
			ownerIDs[i] = strings.TrimSpace(ownerIDs[i])
		}
	}

	cfg := &Config{
		Token:        token,
		GuildID:      os.Getenv("GUILD_ID"),
		DatabasePath: dbPath,
		OwnerIDs:     ownerIDs,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	return nil
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "warden"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}

// --- Phase 2: Database Connection & Lifecycle ---

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	// Explicitly reference sqlite3 driver to avoid blank identifier
	// The driver registers itself via its init() function
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS guild_configs (
			guild_id TEXT PRIMARY KEY,
			auto_role_id TEXT,
			verify_role_id TEXT,
			verify_timeout_minutes INTEGER DEFAULT 10,
			welcome_channel_id TEXT,
			goodbye_channel_id TEXT,
			logging_channel_id TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS warnings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			moderator TEXT NOT NULL,
			moderator_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_warnings_guild_user ON warnings (guild_id, user_id)`,
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Phase 3: Infrastructure & Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Phase 4: Application Logic (Guild Configs) ---

// GuildConfig holds the per-guild feature configuration. Empty snowflake
// fields mean the feature is disabled for that guild.
type GuildConfig struct {
	GuildID              snowflake.ID
	AutoRoleID           snowflake.ID
	VerifyRoleID         snowflake.ID
	VerifyTimeoutMinutes int
	WelcomeChannelID     snowflake.ID
	GoodbyeChannelID     snowflake.ID
	LoggingChannelID     snowflake.ID
	UpdatedAt            time.Time
}

func GetGuildConfig(ctx context.Context, guildID snowflake.ID) (*GuildConfig, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT guild_id, auto_role_id, verify_role_id, verify_timeout_minutes,
			welcome_channel_id, goodbye_channel_id, logging_channel_id
		FROM guild_configs WHERE guild_id = ?
	`, guildID.String())

	cfg := &GuildConfig{GuildID: guildID, VerifyTimeoutMinutes: 10}
	var gid string
	var autoRole, verifyRole, welcomeCh, goodbyeCh, loggingCh sql.NullString
	var timeoutMinutes sql.NullInt64

	err := row.Scan(&gid, &autoRole, &verifyRole, &timeoutMinutes, &welcomeCh, &goodbyeCh, &loggingCh)
	if err == sql.ErrNoRows {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	cfg.AutoRoleID = parseOptionalSnowflake(autoRole)
	cfg.VerifyRoleID = parseOptionalSnowflake(verifyRole)
	if timeoutMinutes.Valid && timeoutMinutes.Int64 > 0 {
		cfg.VerifyTimeoutMinutes = int(timeoutMinutes.Int64)
	}
	cfg.WelcomeChannelID = parseOptionalSnowflake(welcomeCh)
	cfg.GoodbyeChannelID = parseOptionalSnowflake(goodbyeCh)
	cfg.LoggingChannelID = parseOptionalSnowflake(loggingCh)

	return cfg, nil
}

func parseOptionalSnowflake(s sql.NullString) snowflake.ID {
	if !s.Valid || s.String == "" {
		return 0
	}
	id, err := snowflake.Parse(s.String)
	if err != nil {
		return 0
	}
	return id
}

func SetGuildAutoRole(ctx context.Context, guildID, roleID snowflake.ID) error {
	return upsertGuildConfig(ctx, guildID, "auto_role_id", roleID.String())
}

func SetGuildVerification(ctx context.Context, guildID, roleID snowflake.ID, timeoutMinutes int) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO guild_configs (guild_id, verify_role_id, verify_timeout_minutes) VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			verify_role_id = excluded.verify_role_id,
			verify_timeout_minutes = excluded.verify_timeout_minutes,
			updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), roleID.String(), timeoutMinutes)
	return err
}

func SetGuildWelcomeChannels(ctx context.Context, guildID, welcomeID, goodbyeID snowflake.ID) error {
	goodbye := ""
	if goodbyeID != 0 {
		goodbye = goodbyeID.String()
	}
	_, err := DB.ExecContext(ctx, `
		INSERT INTO guild_configs (guild_id, welcome_channel_id, goodbye_channel_id) VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			welcome_channel_id = excluded.welcome_channel_id,
			goodbye_channel_id = excluded.goodbye_channel_id,
			updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), welcomeID.String(), goodbye)
	return err
}

func SetGuildLoggingChannel(ctx context.Context, guildID, channelID snowflake.ID) error {
	return upsertGuildConfig(ctx, guildID, "logging_channel_id", channelID.String())
}

func upsertGuildConfig(ctx context.Context, guildID snowflake.ID, column, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO guild_configs (guild_id, %s) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET %s = excluded.%s, updated_at = CURRENT_TIMESTAMP
	`, column, column, column)
	_, err := DB.ExecContext(ctx, query, guildID.String(), value)
	return err
}

// --- Phase 5: Application Logic (Warnings) ---

type Warning struct {
	ID          int64
	GuildID     snowflake.ID
	UserID      snowflake.ID
	Reason      string
	Moderator   string
	ModeratorID snowflake.ID
	CreatedAt   time.Time
}

func AddWarning(ctx context.Context, w *Warning) error {
	result, err := DB.ExecContext(ctx, `
		INSERT INTO warnings (guild_id, user_id, reason, moderator, moderator_id)
		VALUES (?, ?, ?, ?, ?)
	`, w.GuildID.String(), w.UserID.String(), w.Reason, w.Moderator, w.ModeratorID.String())
	if err != nil {
		return err
	}
	w.ID, _ = result.LastInsertId()
	return nil
}

func GetWarnings(ctx context.Context, guildID, userID snowflake.ID) ([]*Warning, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, guild_id, user_id, reason, moderator, moderator_id, created_at
		FROM warnings WHERE guild_id = ? AND user_id = ? ORDER BY created_at DESC
	`, guildID.String(), userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var warnings []*Warning
	for rows.Next() {
		w := &Warning{}
		var gid, uid, mid string
		if err := rows.Scan(&w.ID, &gid, &uid, &w.Reason, &w.Moderator, &mid, &w.CreatedAt); err != nil {
			return nil, err
		}
		w.GuildID, err = snowflake.Parse(gid)
		if err != nil {
			return nil, fmt.Errorf("failed to parse guild ID '%s' for warning %d: %w", gid, w.ID, err)
		}
		w.UserID, err = snowflake.Parse(uid)
		if err != nil {
			return nil, fmt.Errorf("failed to parse user ID '%s' for warning %d: %w", uid, w.ID, err)
		}
		w.ModeratorID, err = snowflake.Parse(mid)
		if err != nil {
			return nil, fmt.Errorf("failed to parse moderator ID '%s' for warning %d: %w", mid, w.ID, err)
		}
		warnings = append(warnings, w)
	}
	return warnings, nil
}

func CountWarnings(ctx context.Context, guildID, userID snowflake.ID) (int, error) {
	var count int
	err := DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM warnings WHERE guild_id = ? AND user_id = ?",
		guildID.String(), userID.String()).Scan(&count)
	return count, err
}

func ClearWarnings(ctx context.Context, guildID, userID snowflake.ID) (int64, error) {
	result, err := DB.ExecContext(ctx, "DELETE FROM warnings WHERE guild_id = ? AND user_id = ?",
		guildID.String(), userID.String())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
