package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"messenger/internal/store"
)

// schema is applied on startup. All statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	type       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_members (
	chat_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	PRIMARY KEY (chat_id, user_id),
	FOREIGN KEY (chat_id) REFERENCES chats(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS groups (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	creator_id TEXT NOT NULL,
	chat_id    TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (creator_id) REFERENCES users(id),
	FOREIGN KEY (chat_id) REFERENCES chats(id)
);

CREATE TABLE IF NOT EXISTS group_members (
	group_id TEXT NOT NULL,
	user_id  TEXT NOT NULL,
	PRIMARY KEY (group_id, user_id),
	FOREIGN KEY (group_id) REFERENCES groups(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	chat_id    TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	is_read    BOOLEAN NOT NULL DEFAULT 0,
	FOREIGN KEY (chat_id) REFERENCES chats(id),
	FOREIGN KEY (sender_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS message_reads (
	id         TEXT PRIMARY KEY,
	message_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	read_at    DATETIME NOT NULL,
	UNIQUE (message_id, user_id),
	FOREIGN KEY (message_id) REFERENCES messages(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at);
CREATE INDEX IF NOT EXISTS idx_message_reads_message ON message_reads(message_id);
CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup opens the database and runs a setup function after the
// schema is applied. Useful for tests that need seeded data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}
	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, passwordHash string) (*store.User, error) {
	u := &store.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	query := `INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, u.ID.String(), u.Name, u.Email, u.PasswordHash, u.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*store.User, error) {
	query := `SELECT id, name, email, password_hash, created_at FROM users WHERE id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id.String()))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var (
		u     store.User
		rawID string
	)
	err := row.Scan(&rawID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if u.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	return &u, nil
}

// ==== ChatStore implementation ====

// CreatePersonalChat creates a personal chat with the given members.
func (s *SQLiteStore) CreatePersonalChat(ctx context.Context, memberIDs []uuid.UUID) (*store.Chat, error) {
	c := &store.Chat{
		ID:        uuid.New(),
		Type:      store.ChatTypePersonal,
		Members:   memberIDs,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chats (id, name, type, created_at) VALUES (?, '', ?, ?)`,
		c.ID.String(), string(c.Type), c.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	for _, memberID := range memberIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id) VALUES (?, ?)`,
			c.ID.String(), memberID.String(),
		); err != nil {
			return nil, fmt.Errorf("insert chat member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

// CreateGroupChat creates a group chat plus its group record. The group's
// member set mirrors the chat's member set.
func (s *SQLiteStore) CreateGroupChat(ctx context.Context, name string, creatorID uuid.UUID, memberIDs []uuid.UUID) (*store.Chat, error) {
	members := dedupeWith(creatorID, memberIDs)
	now := time.Now().UTC()
	c := &store.Chat{
		ID:        uuid.New(),
		Name:      name,
		Type:      store.ChatTypeGroup,
		Members:   members,
		CreatedAt: now,
	}
	groupID := uuid.New()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chats (id, name, type, created_at) VALUES (?, ?, ?, ?)`,
		c.ID.String(), name, string(c.Type), now,
	); err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, creator_id, chat_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		groupID.String(), name, creatorID.String(), c.ID.String(), now,
	); err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}

	for _, memberID := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id) VALUES (?, ?)`,
			c.ID.String(), memberID.String(),
		); err != nil {
			return nil, fmt.Errorf("insert chat member: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id) VALUES (?, ?)`,
			groupID.String(), memberID.String(),
		); err != nil {
			return nil, fmt.Errorf("insert group member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

// GetChat retrieves a chat with its member set.
func (s *SQLiteStore) GetChat(ctx context.Context, id uuid.UUID) (*store.Chat, error) {
	var (
		c     store.Chat
		rawID string
		typ   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, created_at FROM chats WHERE id = ?`, id.String(),
	).Scan(&rawID, &c.Name, &typ, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query chat: %w", err)
	}
	if c.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse chat id: %w", err)
	}
	c.Type = store.ChatType(typ)

	c.Members, err = s.listChatMembers(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) listChatMembers(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM chat_members WHERE chat_id = ?`, chatID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query chat members: %w", err)
	}
	defer rows.Close()

	var members []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse member id: %w", err)
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// ListUserChats lists all chats the user is a member of.
func (s *SQLiteStore) ListUserChats(ctx context.Context, userID uuid.UUID) ([]*store.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.type, c.created_at
		FROM chats c
		JOIN chat_members cm ON cm.chat_id = c.id
		WHERE cm.user_id = ?
		ORDER BY c.created_at`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query user chats: %w", err)
	}
	defer rows.Close()

	var chats []*store.Chat
	for rows.Next() {
		var (
			c     store.Chat
			rawID string
			typ   string
		)
		if err := rows.Scan(&rawID, &c.Name, &typ, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		if c.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parse chat id: %w", err)
		}
		c.Type = store.ChatType(typ)
		chats = append(chats, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range chats {
		if c.Members, err = s.listChatMembers(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

// IsMember checks if the user belongs to the chat.
func (s *SQLiteStore) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM chat_members WHERE chat_id = ? AND user_id = ?`,
		chatID.String(), userID.String(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return n > 0, nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a message, assigning its ID and timestamp.
func (s *SQLiteStore) CreateMessage(ctx context.Context, chatID, senderID uuid.UUID, text string) (*store.Message, error) {
	m := &store.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO messages (id, chat_id, sender_id, text, created_at, is_read) VALUES (?, ?, ?, ?, ?, 0)`
	if _, err := s.db.ExecContext(ctx, query,
		m.ID.String(), chatID.String(), senderID.String(), text, m.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id uuid.UUID) (*store.Message, error) {
	var (
		m                         store.Message
		rawID, rawChat, rawSender string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, sender_id, text, created_at, is_read FROM messages WHERE id = ?`,
		id.String(),
	).Scan(&rawID, &rawChat, &rawSender, &m.Text, &m.CreatedAt, &m.IsRead)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	if m.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse message id: %w", err)
	}
	if m.ChatID, err = uuid.Parse(rawChat); err != nil {
		return nil, fmt.Errorf("parse chat id: %w", err)
	}
	if m.SenderID, err = uuid.Parse(rawSender); err != nil {
		return nil, fmt.Errorf("parse sender id: %w", err)
	}
	return &m, nil
}

// ListMessages retrieves messages from a chat ordered by creation time.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, text, created_at, is_read
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at
		LIMIT ? OFFSET ?`,
		chatID.String(), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var (
			m                         store.Message
			rawID, rawChat, rawSender string
		)
		if err := rows.Scan(&rawID, &rawChat, &rawSender, &m.Text, &m.CreatedAt, &m.IsRead); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parse message id: %w", err)
		}
		if m.ChatID, err = uuid.Parse(rawChat); err != nil {
			return nil, fmt.Errorf("parse chat id: %w", err)
		}
		if m.SenderID, err = uuid.Parse(rawSender); err != nil {
			return nil, fmt.Errorf("parse sender id: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// SetMessageRead flips the aggregate read flag.
func (s *SQLiteStore) SetMessageRead(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_read = 1 WHERE id = ?`, id.String(),
	)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==== ReceiptStore implementation ====

// InsertReadReceipt records that userID read messageID. The unique
// constraint on (message_id, user_id) makes re-marking return the
// existing receipt instead of creating a duplicate.
func (s *SQLiteStore) InsertReadReceipt(ctx context.Context, messageID, userID uuid.UUID) (*store.ReadReceipt, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_reads (id, message_id, user_id, read_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), messageID.String(), userID.String(), time.Now().UTC(),
	); err != nil {
		return nil, fmt.Errorf("insert receipt: %w", err)
	}

	var (
		r     store.ReadReceipt
		rawID string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, read_at FROM message_reads WHERE message_id = ? AND user_id = ?`,
		messageID.String(), userID.String(),
	).Scan(&rawID, &r.ReadAt)
	if err != nil {
		return nil, fmt.Errorf("query receipt: %w", err)
	}
	if r.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse receipt id: %w", err)
	}
	r.MessageID = messageID
	r.UserID = userID
	return &r, nil
}

// ListReceiptUserIDs returns the IDs of users who have read the message.
func (s *SQLiteStore) ListReceiptUserIDs(ctx context.Context, messageID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM message_reads WHERE message_id = ?`, messageID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse receipt user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func dedupeWith(first uuid.UUID, rest []uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{first: {}}
	out := []uuid.UUID{first}
	for _, id := range rest {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
