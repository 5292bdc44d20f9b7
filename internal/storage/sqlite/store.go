package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/tjfontaine/kudospace/internal/kudos"
)

// Store is a SQLite implementation of kudos.Store
type Store struct {
	db *sqlx.DB
}

var _ kudos.Store = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// PRAGMAs are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	store := &Store{db: db}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			avatar_url TEXT,
			email TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS kudos (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			FOREIGN KEY (sender_id) REFERENCES profiles(id),
			FOREIGN KEY (recipient_id) REFERENCES profiles(id),
			CHECK (sender_id <> recipient_id)
		)`,
		`CREATE VIEW IF NOT EXISTS kudos_with_users AS
			SELECT k.rowid AS seq, k.id, k.sender_id, k.recipient_id, k.message, k.created_at, k.updated_at,
				s.display_name AS sender_name, s.email AS sender_email, s.avatar_url AS sender_avatar,
				r.display_name AS recipient_name, r.email AS recipient_email, r.avatar_url AS recipient_avatar
			FROM kudos k
			JOIN profiles s ON s.id = k.sender_id
			JOIN profiles r ON r.id = k.recipient_id`,
		`CREATE INDEX IF NOT EXISTS idx_kudos_created ON kudos(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_kudos_sender ON kudos(sender_id)`,
		`CREATE INDEX IF NOT EXISTS idx_kudos_recipient ON kudos(recipient_id)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_display_name ON profiles(display_name)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

const kudoColumns = `id, sender_id, recipient_id, message, created_at, updated_at,
	sender_name, sender_email, sender_avatar, recipient_name, recipient_email, recipient_avatar`

type kudoRow struct {
	ID              string         `db:"id"`
	SenderID        string         `db:"sender_id"`
	RecipientID     string         `db:"recipient_id"`
	Message         string         `db:"message"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
	SenderName      string         `db:"sender_name"`
	SenderEmail     sql.NullString `db:"sender_email"`
	SenderAvatar    sql.NullString `db:"sender_avatar"`
	RecipientName   string         `db:"recipient_name"`
	RecipientEmail  sql.NullString `db:"recipient_email"`
	RecipientAvatar sql.NullString `db:"recipient_avatar"`
}

func (r kudoRow) toKudo() kudos.Kudo {
	return kudos.Kudo{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Message:     r.Message,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Sender: kudos.ProfileSummary{
			ID:          r.SenderID,
			DisplayName: r.SenderName,
			AvatarURL:   nullable(r.SenderAvatar),
			Email:       nullable(r.SenderEmail),
		},
		Recipient: kudos.ProfileSummary{
			ID:          r.RecipientID,
			DisplayName: r.RecipientName,
			AvatarURL:   nullable(r.RecipientAvatar),
			Email:       nullable(r.RecipientEmail),
		},
	}
}

type profileRow struct {
	ID          string         `db:"id"`
	DisplayName string         `db:"display_name"`
	AvatarURL   sql.NullString `db:"avatar_url"`
	Email       sql.NullString `db:"email"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r profileRow) toProfile() kudos.Profile {
	return kudos.Profile{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		AvatarURL:   nullable(r.AvatarURL),
		Email:       nullable(r.Email),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (s *Store) ListKudos(ctx context.Context, limit, offset int) ([]kudos.Kudo, int, error) {
	var rows []kudoRow
	query := `SELECT ` + kudoColumns + ` FROM kudos_with_users
		ORDER BY created_at DESC, seq DESC
		LIMIT ? OFFSET ?`
	if err := s.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to query kudos: %w", err)
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM kudos`); err != nil {
		return nil, 0, fmt.Errorf("failed to count kudos: %w", err)
	}

	result := make([]kudos.Kudo, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toKudo())
	}
	return result, total, nil
}

func (s *Store) GetKudo(ctx context.Context, id string) (*kudos.Kudo, error) {
	var row kudoRow
	query := `SELECT ` + kudoColumns + ` FROM kudos_with_users WHERE id = ?`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("kudo %s: %w", id, kudos.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get kudo: %w", err)
	}
	kudo := row.toKudo()
	return &kudo, nil
}

func (s *Store) CreateKudo(ctx context.Context, kudo *kudos.KudoRecord) error {
	query := `INSERT INTO kudos (id, sender_id, recipient_id, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		kudo.ID, kudo.SenderID, kudo.RecipientID, kudo.Message, kudo.CreatedAt.UTC(), kudo.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert kudo: %w", classify(err))
	}
	return nil
}

func (s *Store) DeleteKudo(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM kudos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete kudo: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("kudo %s: %w", id, kudos.ErrNotFound)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*kudos.Profile, error) {
	var row profileRow
	query := `SELECT id, display_name, avatar_url, email, created_at, updated_at FROM profiles WHERE id = ?`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", id, kudos.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	profile := row.toProfile()
	return &profile, nil
}

func (s *Store) CreateProfile(ctx context.Context, profile *kudos.Profile) error {
	query := `INSERT INTO profiles (id, display_name, avatar_url, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		profile.ID, profile.DisplayName, profile.AvatarURL, profile.Email,
		profile.CreatedAt.UTC(), profile.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", classify(err))
	}
	return nil
}

func (s *Store) ListProfiles(ctx context.Context, search, excludeID string) ([]kudos.ProfileSummary, error) {
	var (
		where []string
		args  []any
	)
	if excludeID != "" {
		where = append(where, `id <> ?`)
		args = append(args, excludeID)
	}
	if search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		where = append(where, `(LOWER(display_name) LIKE ? ESCAPE '\' OR LOWER(COALESCE(email, '')) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	query := `SELECT id, display_name, avatar_url, email, created_at, updated_at FROM profiles`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY LOWER(display_name), id`

	var rows []profileRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}

	result := make([]kudos.ProfileSummary, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toProfile().Summary())
	}
	return result, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// classify maps constraint violations onto the kudos sentinels.
func classify(err error) error {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return err
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return fmt.Errorf("%w: %v", kudos.ErrConflict, err)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %v", kudos.ErrNotFound, err)
	}
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
