package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"authgate.org/internal/session"
)

// SessionStore carries the session registry and revocation ledger. It shares
// the Store's pool but is a separate type so its Create does not collide with
// the user store's.
type SessionStore struct {
	db *sql.DB
}

var (
	_ session.Registry = (*SessionStore)(nil)
	_ session.Ledger   = (*SessionStore)(nil)
)

const sessionColumns = `id, user_id, jti, device_info, ip_address, is_active, created_at, last_active`

// Eviction candidate order: least recently active first, ties broken by
// creation time, then id. Must stay in sync with the in-memory registry.
const oldestActiveQuery = `
	select ` + sessionColumns + `
	from user_sessions
	where user_id=$1 and is_active
	order by last_active asc, created_at asc, id asc
	limit 1`

func (s *SessionStore) CountActive(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from user_sessions where user_id=$1 and is_active`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}

func (s *SessionStore) FindOldestActive(ctx context.Context, userID int64) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, oldestActiveQuery, userID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find oldest active session: %w", err)
	}
	return sess, nil
}

// Create enforces the cap inside one transaction. The user row is locked
// first so concurrent logins for the same user serialize; without it two
// transactions could each count one active session and both skip eviction.
func (s *SessionStore) Create(ctx context.Context, userID int64, tokenID, deviceInfo, ipAddress string) (session.Session, []string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, nil, fmt.Errorf("begin session tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var locked int
	if err := tx.QueryRowContext(ctx,
		`select 1 from users where id=$1 for update`, userID,
	).Scan(&locked); err != nil {
		return session.Session{}, nil, fmt.Errorf("lock user row: %w", err)
	}

	var evicted []string
	for {
		var n int
		if err := tx.QueryRowContext(ctx,
			`select count(*) from user_sessions where user_id=$1 and is_active`, userID,
		).Scan(&n); err != nil {
			return session.Session{}, nil, fmt.Errorf("count active sessions: %w", err)
		}
		if n < session.MaxActivePerUser {
			break
		}

		var victimID int64
		var victimJTI string
		if err := tx.QueryRowContext(ctx, `
			select id, jti from user_sessions
			where user_id=$1 and is_active
			order by last_active asc, created_at asc, id asc
			limit 1
		`, userID).Scan(&victimID, &victimJTI); err != nil {
			return session.Session{}, nil, fmt.Errorf("pick eviction candidate: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			insert into token_blacklist(jti, user_id) values ($1,$2)
			on conflict (jti) do nothing
		`, victimJTI, userID); err != nil {
			return session.Session{}, nil, fmt.Errorf("revoke evicted token: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`update user_sessions set is_active=false where id=$1`, victimID,
		); err != nil {
			return session.Session{}, nil, fmt.Errorf("deactivate evicted session: %w", err)
		}
		evicted = append(evicted, victimJTI)
	}

	var sess session.Session
	sess.UserID = userID
	sess.TokenID = tokenID
	sess.DeviceInfo = deviceInfo
	sess.IPAddress = ipAddress
	sess.Active = true
	if err := tx.QueryRowContext(ctx, `
		insert into user_sessions(user_id, jti, device_info, ip_address)
		values ($1,$2,$3,$4)
		returning id, created_at, last_active
	`, userID, tokenID, deviceInfo, ipAddress).Scan(&sess.ID, &sess.CreatedAt, &sess.LastActive); err != nil {
		return session.Session{}, nil, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return session.Session{}, nil, fmt.Errorf("commit session tx: %w", err)
	}
	return sess, evicted, nil
}

func (s *SessionStore) Touch(ctx context.Context, tokenID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update user_sessions set last_active=now() where jti=$1 and is_active`, tokenID)
	if err != nil {
		return false, fmt.Errorf("touch session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("touch session: %w", err)
	}
	return n > 0, nil
}

func (s *SessionStore) Deactivate(ctx context.Context, tokenID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update user_sessions set is_active=false where jti=$1`, tokenID)
	if err != nil {
		return false, fmt.Errorf("deactivate session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate session: %w", err)
	}
	return n > 0, nil
}

func (s *SessionStore) ListActive(ctx context.Context, userID int64) ([]session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+sessionColumns+`
		from user_sessions
		where user_id=$1 and is_active
		order by last_active desc, id desc
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var res []session.Session
	for rows.Next() {
		var sess session.Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.TokenID, &sess.DeviceInfo,
			&sess.IPAddress, &sess.Active, &sess.CreatedAt, &sess.LastActive); err != nil {
			return nil, err
		}
		res = append(res, sess)
	}
	return res, rows.Err()
}

// --- session.Ledger -------------------------------------------------------

func (s *SessionStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from token_blacklist where jti=$1)`, tokenID,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return revoked, nil
}

func (s *SessionStore) Revoke(ctx context.Context, tokenID string, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		insert into token_blacklist(jti, user_id) values ($1,$2)
		on conflict (jti) do nothing
	`, tokenID, userID)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var sess session.Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenID, &sess.DeviceInfo,
		&sess.IPAddress, &sess.Active, &sess.CreatedAt, &sess.LastActive)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
