package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"vitrina.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) PrincipalStore {
	return &pgNamespace{db: s.db, table: "users", kind: KindUser}
}

func (s *PGStore) Admins(context.Context) PrincipalStore {
	return &pgNamespace{db: s.db, table: "admins", kind: KindAdmin}
}

type pgNamespace struct {
	db    *sql.DB
	table string
	kind  Kind
}

func (s *pgNamespace) Create(ctx context.Context, p *Principal) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.Kind = s.kind
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(id, username, password_hash, display_name, refresh_token) values($1,$2,$3,$4,$5)`, s.table),
		p.ID, p.Username, p.PasswordHash, p.DisplayName, p.RefreshToken,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *pgNamespace) Find(ctx context.Context, id string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select id, username, password_hash, display_name, refresh_token, created_at, updated_at from %s where id=$1`, s.table), id)
	return s.scan(row)
}

func (s *pgNamespace) FindByUsername(ctx context.Context, username string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select id, username, password_hash, display_name, refresh_token, created_at, updated_at from %s where username=$1`, s.table), username)
	return s.scan(row)
}

func (s *pgNamespace) scan(row *sql.Row) (*Principal, error) {
	var (
		p       Principal
		refresh sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Username, &p.PasswordHash, &p.DisplayName, &refresh, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if refresh.Valid {
		p.RefreshToken = &refresh.String
	}
	p.Kind = s.kind
	return &p, nil
}

func (s *pgNamespace) SetRefreshToken(ctx context.Context, id string, token *string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`update %s set refresh_token=$2, updated_at=now() where id=$1`, s.table),
		id, token,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateRefreshToken relies on a conditional update so the check and the
// write happen in one statement; a lost race reports zero affected rows.
func (s *pgNamespace) RotateRefreshToken(ctx context.Context, id, presented, next string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`update %s set refresh_token=$3, updated_at=now() where id=$1 and refresh_token is not distinct from $2`, s.table),
		id, presented, next,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUnauthorized
	}
	return nil
}
