package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/tokenkeeper/internal/domain/model"
	"github.com/ericfisherdev/tokenkeeper/internal/domain/port/driven"
)

// encryptedPrefix marks payloads sealed with AES-256-GCM. Rows written before
// a key was configured stay readable as plain JSON.
const encryptedPrefix = "enc:v1:"

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Each environment maps to a row in containers; every Store appends a row to
// credential_versions and Load reads the newest one.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil stores payloads as plain JSON.
	now func() time.Time
}

// NewCredentialRepo creates a CredentialRepo. key must be 32 bytes for
// AES-256-GCM, or nil to store payloads unencrypted.
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key, now: time.Now}
}

// Store appends a new version for env, creating its container first if needed.
func (r *CredentialRepo) Store(ctx context.Context, env model.Environment, creds model.CredentialSet) error {
	if !env.Valid() {
		return fmt.Errorf("%w: %q", driven.ErrUnknownEnvironment, env)
	}

	stamped, err := creds.Stamp(env, r.now())
	if err != nil {
		return fmt.Errorf("%w: %w", driven.ErrInvalidCredentials, err)
	}

	raw, err := json.Marshal(stamped)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	payload, err := r.seal(raw)
	if err != nil {
		return fmt.Errorf("%w: encrypt credentials: %w", driven.ErrStoreUnavailable, err)
	}

	container := driven.ContainerName(env)
	versionID := uuid.NewString()

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin store", err)
	}
	defer func() { _ = tx.Rollback() }()

	const createContainer = `INSERT OR IGNORE INTO containers (name, environment) VALUES (?, ?)`
	res, err := tx.ExecContext(ctx, createContainer, container, string(env))
	if err != nil {
		return unavailable("create container "+container, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("credential container created", "container", container)
	}

	const appendVersion = `INSERT INTO credential_versions (version_id, container, payload) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, appendVersion, versionID, container, payload); err != nil {
		return unavailable("append version to "+container, err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit store", err)
	}

	slog.Debug("credential version appended", "container", container, "version_id", versionID)
	return nil
}

// Load returns the newest version for env.
// Returns (nil, nil) if env has no container or no versions.
func (r *CredentialRepo) Load(ctx context.Context, env model.Environment) (*model.CredentialSet, error) {
	if !env.Valid() {
		return nil, fmt.Errorf("%w: %q", driven.ErrUnknownEnvironment, env)
	}

	const query = `SELECT payload FROM credential_versions WHERE container = ? ORDER BY id DESC LIMIT 1`
	var payload string
	err := r.db.Reader.QueryRowContext(ctx, query, driven.ContainerName(env)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("load "+string(env), err)
	}

	raw, err := r.open(payload)
	if err != nil {
		return nil, unavailable("decrypt "+string(env), err)
	}

	var creds model.CredentialSet
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, unavailable("decode "+string(env), err)
	}
	return &creds, nil
}

// Delete removes env's container. Versions go with it through the cascade.
func (r *CredentialRepo) Delete(ctx context.Context, env model.Environment) error {
	if !env.Valid() {
		return fmt.Errorf("%w: %q", driven.ErrUnknownEnvironment, env)
	}

	const query = `DELETE FROM containers WHERE name = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, driven.ContainerName(env)); err != nil {
		return unavailable("delete "+string(env), err)
	}
	return nil
}

// List returns the environments whose container exists, in name order.
func (r *CredentialRepo) List(ctx context.Context) ([]model.Environment, error) {
	const query = `SELECT name FROM containers WHERE name LIKE ? ORDER BY name`
	rows, err := r.db.Reader.QueryContext(ctx, query, driven.ContainerPrefix+"%")
	if err != nil {
		return nil, unavailable("list containers", err)
	}
	defer rows.Close()

	var envs []model.Environment
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, unavailable("scan container", err)
		}
		env, err := model.ParseEnvironment(strings.TrimPrefix(name, driven.ContainerPrefix))
		if err != nil {
			slog.Warn("ignoring container with unknown environment", "container", name)
			continue
		}
		envs = append(envs, env)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate containers", err)
	}

	return envs, nil
}

// Versions returns the number of versions retained for env.
func (r *CredentialRepo) Versions(ctx context.Context, env model.Environment) (int, error) {
	const query = `SELECT COUNT(*) FROM credential_versions WHERE container = ?`
	var n int
	if err := r.db.Reader.QueryRowContext(ctx, query, driven.ContainerName(env)).Scan(&n); err != nil {
		return 0, unavailable("count versions of "+string(env), err)
	}
	return n, nil
}

// seal encrypts raw with AES-256-GCM when a key is configured and returns
// the prefixed base64 of nonce || ciphertext || tag.
func (r *CredentialRepo) seal(raw []byte) (string, error) {
	if r.key == nil {
		return string(raw), nil
	}

	gcm, err := newGCM(r.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, raw, nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// open reverses seal. Unprefixed payloads are returned as is.
func (r *CredentialRepo) open(payload string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(payload, encryptedPrefix)
	if !ok {
		return []byte(payload), nil
	}
	if r.key == nil {
		return nil, errors.New("payload is encrypted but no key is configured")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := newGCM(r.key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	raw, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm.Open: %w", err)
	}
	return raw, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

// unavailable wraps a backend failure so callers can match ErrStoreUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", driven.ErrStoreUnavailable, op, err)
}
