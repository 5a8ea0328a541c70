package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// credentialRecord is the single durable row holding the token pair. The
// browser-profile analogue: exactly two string values survive a restart.
type credentialRecord struct {
	bun.BaseModel `bun:"table:credentials,alias:crd"`
	ID            int64     `bun:"id,pk"`
	AccessToken   string    `bun:"access_token,notnull"`
	RefreshToken  string    `bun:"refresh_token,notnull"`
	ExpiresIn     int       `bun:"expires_in"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

const credentialRecordID = 1

// BunStore is the durable CredentialStore backed by Bun over SQLite.
type BunStore struct {
	db  *bun.DB
	now func() time.Time
}

// NewBunStore wraps an existing Bun handle.
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db, now: time.Now}
}

// OpenStore opens (or creates) the durable credential store at the given
// SQLite DSN and wraps it with in-memory degradation so storage failures
// are never fatal.
func OpenStore(dsn string, logger Logger) (CredentialStore, error) {
	if logger == nil {
		logger = defLogger{}
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		logger.Warn("durable credential store unavailable: %v", err)
		return NewMemoryStore(), nil
	}

	store := NewBunStore(bun.NewDB(sqldb, sqlitedialect.New()))
	if err := store.Init(context.Background()); err != nil {
		logger.Warn("durable credential store init failed: %v", err)
		return NewMemoryStore(), nil
	}

	return NewFallbackStore(store, logger), nil
}

// Init creates the credentials table if needed.
func (s *BunStore) Init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*credentialRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create credentials table").
			WithTextCode(TextCodeStorageUnavailable)
	}
	return nil
}

// Save implements CredentialStore. Last write wins: the single row is
// upserted, never merged.
func (s *BunStore) Save(ctx context.Context, cred *Credential) error {
	if cred == nil {
		return s.Clear(ctx)
	}

	record := &credentialRecord{
		ID:           credentialRecordID,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresIn:    cred.ExpiresIn,
		UpdatedAt:    s.now(),
	}

	if _, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("expires_in = EXCLUDED.expires_in").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to persist credential").
			WithTextCode(TextCodeStorageUnavailable)
	}

	return nil
}

// Load implements CredentialStore.
func (s *BunStore) Load(ctx context.Context) (*Credential, error) {
	record := &credentialRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("crd.id = ?", credentialRecordID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load credential").
			WithTextCode(TextCodeStorageUnavailable)
	}

	return &Credential{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		ExpiresIn:    record.ExpiresIn,
	}, nil
}

// Clear implements CredentialStore.
func (s *BunStore) Clear(ctx context.Context) error {
	if _, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("id = ?", credentialRecordID).
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to clear credential").
			WithTextCode(TextCodeStorageUnavailable)
	}
	return nil
}
