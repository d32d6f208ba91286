package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrymigrate "github.com/TruongKhoiNguyen/Agora-api/internal/registry/migrate"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/TruongKhoiNguyen/Agora-api/internal/security"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.Store, error) {
			cfg := config.FromContext(ctx)
			db, err := Open(cfg)
			if err != nil {
				return nil, err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			if security.DBPoolMaxConnections != nil {
				security.DBPoolMaxConnections.Set(float64(cfg.DBMaxOpenConns))
			}

			// Periodically update the open connections gauge.
			go func() {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if security.DBPoolOpenConnections != nil {
							security.DBPoolOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
						}
					}
				}
			}()

			return &PostgresStore{db: db}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

// Open connects gorm to cfg.DBURL and applies the pool limits.
func Open(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	if cfg.DBMaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	return db, nil
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }
func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "postgres" && cfg.DirectoryType != "postgres" {
		return nil // skip if not using postgres
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// Read and execute embedded schema
	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// PostgresStore implements Store using GORM + PostgreSQL.
type PostgresStore struct {
	db *gorm.DB
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// jsonbContains filters rows whose jsonb array column holds the value.
func jsonbContains(column string) string {
	return column + " @> jsonb_build_array(?::text)"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches s literally under ILIKE.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func normalizeConversation(c *model.Conversation) {
	if c.Members == nil {
		c.Members = []string{}
	}
	if c.Admins == nil {
		c.Admins = []string{}
	}
	c.LastMessageAt = c.LastMessageAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
}

func normalizeMessage(m *model.Message) {
	if m.Images == nil {
		m.Images = []string{}
	}
	if m.SeenUsers == nil {
		m.SeenUsers = []string{}
	}
	m.CreatedAt = m.CreatedAt.UTC()
}

// --- Conversations ---

func (s *PostgresStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	row := *c
	normalizeConversation(&row)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return conflictOrErr(fmt.Errorf("insert conversation: %w", err), "conversation already exists", "duplicate_direct")
	}
	return nil
}

func (s *PostgresStore) FindDirectConversation(ctx context.Context, a, b string) (*model.Conversation, error) {
	key := model.DirectKey(a, b)
	var c model.Conversation
	if err := s.db.WithContext(ctx).Where("direct_key = ?", key).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "conversation", ID: key}
		}
		return nil, fmt.Errorf("find direct conversation: %w", err)
	}
	normalizeConversation(&c)
	return &c, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID, userID string, access registrystore.Access) (*model.Conversation, error) {
	column := "members"
	if access == registrystore.AccessAdmin {
		column = "admins"
	}
	var c model.Conversation
	err := s.db.WithContext(ctx).
		Where("id = ?", conversationID).
		Where(jsonbContains(column), userID).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	normalizeConversation(&c)
	return &c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID string, query registrystore.ListConversationsQuery) ([]model.Conversation, error) {
	q := s.db.WithContext(ctx).Where(jsonbContains("members"), userID)
	if query.NameContains != "" {
		q = q.Where(`name ILIKE ? ESCAPE '\'`, containsPattern(query.NameContains))
	}
	q = q.Order("last_message_at DESC, id DESC")
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	var rows []model.Conversation
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	for i := range rows {
		normalizeConversation(&rows[i])
	}
	return rows, nil
}

func (s *PostgresStore) MutateConversation(ctx context.Context, conversationID string, m registrystore.Mutation) (*model.Conversation, *model.Conversation, error) {
	var before, after model.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", conversationID).
			First(&before).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return registrystore.ErrNoMatch
			}
			return err
		}
		normalizeConversation(&before)
		if !m.Matches(&before) {
			return registrystore.ErrNoMatch
		}
		after = m.Apply(before)
		after.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
		normalizeConversation(&after)
		return tx.Model(&after).
			Select("name", "thumb", "members", "admins", "updated_at").
			Updates(&after).Error
	})
	if err != nil {
		if errors.Is(err, registrystore.ErrNoMatch) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("mutate conversation: %w", err)
	}
	return &before, &after, nil
}

func (s *PostgresStore) RecordMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	res := s.db.WithContext(ctx).Exec(`UPDATE conversations
		SET message_count = message_count + 1,
		    last_message_at = GREATEST(last_message_at, ?),
		    last_message_id = GREATEST(last_message_id, ?),
		    updated_at = ?
		WHERE id = ?`, at.UTC(), messageID, time.Now().UTC(), conversationID)
	if res.Error != nil {
		return fmt.Errorf("record message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return nil
}

// --- Messages ---

func (s *PostgresStore) InsertMessage(ctx context.Context, m *model.Message) error {
	row := *m
	normalizeMessage(&row)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return conflictOrErr(fmt.Errorf("insert message: %w", err), "message already exists", "duplicate_id")
	}
	return nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	var m model.Message
	err := s.db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", messageID, conversationID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	normalizeMessage(&m)
	return &m, nil
}

func (s *PostgresStore) LatestMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	var rows []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest message: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	normalizeMessage(&rows[0])
	return &rows[0], nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, query registrystore.MessageQuery) ([]model.Message, error) {
	q := s.db.WithContext(ctx).Where("conversation_id = ?", query.ConversationID)
	if query.Before != "" {
		q = q.Where("id < ?", query.Before)
	}
	if query.AtOrAfter != "" {
		q = q.Where("id >= ?", query.AtOrAfter)
	}
	if query.Contains != "" {
		q = q.Where(`content ILIKE ? ESCAPE '\'`, containsPattern(query.Contains))
	}
	if query.Ascending {
		q = q.Order("id ASC")
	} else {
		q = q.Order("id DESC")
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	var rows []model.Message
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	for i := range rows {
		normalizeMessage(&rows[i])
	}
	return rows, nil
}

func (s *PostgresStore) AddSeenUser(ctx context.Context, conversationID, messageID, userID string) (*model.Message, bool, error) {
	res := s.db.WithContext(ctx).Exec(`UPDATE messages
		SET seen_users = seen_users || jsonb_build_array(?::text)
		WHERE id = ? AND conversation_id = ? AND sender <> ?
		  AND NOT seen_users @> jsonb_build_array(?::text)`,
		userID, messageID, conversationID, userID, userID)
	if res.Error != nil {
		return nil, false, fmt.Errorf("add seen user: %w", res.Error)
	}
	m, err := s.GetMessage(ctx, conversationID, messageID)
	if err != nil {
		return nil, false, err
	}
	return m, res.RowsAffected > 0, nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ registrystore.Store = (*PostgresStore)(nil)
