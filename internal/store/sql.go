package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"lanchat/internal/model"
)

// Dialect selects the schema flavor of SQLStore
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

var schemas = map[Dialect][]string{
	DialectMySQL: {`
	CREATE TABLE IF NOT EXISTS chat_messages (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		conversation VARCHAR(300) NOT NULL,
		scope VARCHAR(16) NOT NULL,
		sender_id VARCHAR(128) NOT NULL,
		sender_name VARCHAR(128) NOT NULL DEFAULT '',
		recipient_id VARCHAR(128) NOT NULL DEFAULT '',
		body TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		INDEX idx_chat_messages_conversation (conversation, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
	`},
	DialectSQLite: {`
	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation TEXT NOT NULL,
		scope TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		recipient_id TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation ON chat_messages(conversation, created_at);`,
	},
}

// SQLStore persists messages in MariaDB/MySQL or SQLite.
// created_at is stored as unix microseconds so both dialects order identically.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore creates the chat_messages table if needed
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	stmts, ok := schemas[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init %s schema: %w", dialect, err)
		}
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) Insert(ctx context.Context, msg *model.Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	msg.CreatedAt = model.Timestamp(msg.CreatedAt)

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_messages (conversation, scope, sender_id, sender_name, recipient_id, body, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		msg.Conversation().Key(), string(msg.Scope), msg.SenderID, msg.SenderName, msg.RecipientID, msg.Body, msg.CreatedAt.UnixMicro())
	if err != nil {
		return err
	}

	lastInsertID, err := result.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = strconv.FormatInt(lastInsertID, 10)
	return nil
}

func (s *SQLStore) Query(ctx context.Context, q Query) ([]model.Message, error) {
	before := int64(1<<63 - 1)
	if q.Before != nil {
		before = q.Before.UnixMicro()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope, sender_id, sender_name, recipient_id, body, created_at
		FROM chat_messages
		WHERE conversation = ? AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		q.Conversation.Key(), before, limitOf(q))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var (
			m       model.Message
			id      int64
			scope   string
			created int64
		)
		if err := rows.Scan(&id, &scope, &m.SenderID, &m.SenderName, &m.RecipientID, &m.Body, &created); err != nil {
			return nil, err
		}
		m.ID = strconv.FormatInt(id, 10)
		m.Scope = model.Scope(scope)
		m.CreatedAt = time.UnixMicro(created).UTC()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
