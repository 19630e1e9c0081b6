// Package store is the SQLite-backed credential storage of spec §4.4: one
// mutex-guarded *sql.DB holding ticketbooks, pending zk-nym requests, and
// the per-epoch verification material. Grounded on
// getployz-ployz/internal/adapter/sqlite.Store and
// getployz-ployz/infra/sqlite.Open's WAL/busy-timeout setup, generalized
// from a single spec table to the five tables this domain needs.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	nymerrors "go.nymvpn.network/core/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS ticketbooks (
	ticket_type TEXT NOT NULL,
	expiration_date TEXT NOT NULL,
	epoch_id INTEGER NOT NULL,
	ecash_secret BLOB NOT NULL,
	wallet_signatures BLOB NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (ticket_type, expiration_date)
);

CREATE TABLE IF NOT EXISTS pending_requests (
	id TEXT PRIMARY KEY,
	ticket_type TEXT NOT NULL,
	expiration_date TEXT NOT NULL,
	request_info BLOB NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS epoch_verification_keys (
	epoch_id INTEGER PRIMARY KEY,
	master_verification_key BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS coin_index_signatures (
	epoch_id INTEGER PRIMARY KEY,
	signatures BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS expiration_date_signatures (
	expiration_date TEXT PRIMARY KEY,
	signatures BLOB NOT NULL
);
`

// Store is a mutex-wrapped *sql.DB, matching spec §5's "the credential
// storage is a single async mutex; all reads and writes go through it."
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates the database file (and its parent directory) if needed and
// applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "create credential store directory")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "open credential store")
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "set credential store journal mode")
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "set credential store busy timeout")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "apply credential store schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ticketbook is the persistent form of spec §3's Ticketbook type.
type Ticketbook struct {
	TicketType       string
	ExpirationDate   string
	EpochID          uint64
	EcashSecret      []byte
	WalletSignatures []byte
	CreatedAt        time.Time
}

// PutTicketbook upserts a ticketbook, keyed by (ticket_type,
// expiration_date) per spec §3 ("each type is accounted separately").
func (s *Store) PutTicketbook(tb Ticketbook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO ticketbooks (ticket_type, expiration_date, epoch_id, ecash_secret, wallet_signatures, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticket_type, expiration_date) DO UPDATE SET
			epoch_id=excluded.epoch_id,
			ecash_secret=excluded.ecash_secret,
			wallet_signatures=excluded.wallet_signatures`,
		tb.TicketType, tb.ExpirationDate, tb.EpochID, tb.EcashSecret, tb.WalletSignatures, tb.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "persist ticketbook")
	}
	return nil
}

// AvailableTickets counts stored ticketbooks grouped by ticket type,
// backing the §4.5 "tickets below the soft threshold" gate.
func (s *Store) AvailableTickets() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT ticket_type, COUNT(*) FROM ticketbooks GROUP BY ticket_type`)
	if err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "count available tickets")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "scan ticket count row")
		}
		out[t] = n
	}
	return out, rows.Err()
}

// PendingRequest is the §4.4 step-3 resumption record.
type PendingRequest struct {
	ID             string
	TicketType     string
	ExpirationDate string
	RequestInfo    []byte
	CreatedAt      time.Time
}

func (s *Store) PutPendingRequest(p PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO pending_requests (id, ticket_type, expiration_date, request_info, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.TicketType, p.ExpirationDate, p.RequestInfo, p.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "persist pending zk-nym request")
	}
	return nil
}

func (s *Store) DeletePendingRequest(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM pending_requests WHERE id = ?`, id)
	if err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "delete pending zk-nym request")
	}
	return nil
}

func (s *Store) ListPendingRequests() ([]PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT id, ticket_type, expiration_date, request_info, created_at FROM pending_requests`)
	if err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "list pending zk-nym requests")
	}
	defer rows.Close()

	var out []PendingRequest
	for rows.Next() {
		var p PendingRequest
		var createdAt string
		if err := rows.Scan(&p.ID, &p.TicketType, &p.ExpirationDate, &p.RequestInfo, &createdAt); err != nil {
			return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "scan pending request row")
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// PutMasterVerificationKey stores the epoch's master verification key if
// not already present.
func (s *Store) PutMasterVerificationKey(epochID uint64, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT OR IGNORE INTO epoch_verification_keys (epoch_id, master_verification_key) VALUES (?, ?)`, epochID, key)
	if err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "persist master verification key")
	}
	return nil
}

func (s *Store) MasterVerificationKey(epochID uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var key []byte
	err := s.db.QueryRow(`SELECT master_verification_key FROM epoch_verification_keys WHERE epoch_id = ?`, epochID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nymerrors.Errorf(nymerrors.KindNotFound, "no master verification key in storage for epoch %d", epochID)
	}
	if err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "query master verification key")
	}
	return key, nil
}

func (s *Store) PutCoinIndexSignatures(epochID uint64, sigs []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT OR IGNORE INTO coin_index_signatures (epoch_id, signatures) VALUES (?, ?)`, epochID, sigs)
	if err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "persist coin index signatures")
	}
	return nil
}

func (s *Store) CoinIndexSignatures(epochID uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sigs []byte
	err := s.db.QueryRow(`SELECT signatures FROM coin_index_signatures WHERE epoch_id = ?`, epochID).Scan(&sigs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nymerrors.Errorf(nymerrors.KindNotFound, "no coin index signatures in storage for epoch %d", epochID)
	}
	if err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "query coin index signatures")
	}
	return sigs, nil
}

func (s *Store) PutExpirationDateSignatures(date string, sigs []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT OR IGNORE INTO expiration_date_signatures (expiration_date, signatures) VALUES (?, ?)`, date, sigs)
	if err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "persist expiration date signatures")
	}
	return nil
}

func (s *Store) ExpirationDateSignatures(date string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sigs []byte
	err := s.db.QueryRow(`SELECT signatures FROM expiration_date_signatures WHERE expiration_date = ?`, date).Scan(&sigs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nymerrors.Errorf(nymerrors.KindNotFound, "no expiration date signatures in storage for date %s", date)
	}
	if err != nil {
		return nil, nymerrors.Wrap(err, nymerrors.KindInternal, "query expiration date signatures")
	}
	return sigs, nil
}

// Reset deletes every row from every table (the tables themselves are
// kept), used by the account controller's
// Forget sequence (spec §4.5 step 4 "reset credential storage").
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tables := []string{"ticketbooks", "pending_requests", "epoch_verification_keys", "coin_index_signatures", "expiration_date_signatures"}
	for _, t := range tables {
		if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", t)); err != nil {
			return nymerrors.Wrapf(err, nymerrors.KindInternal, "reset credential table %s", t)
		}
	}
	return nil
}
