package auth

import (
	"context"
	"database/sql"
	"time"

	"hrdesk.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const identityColumns = `id, work_email, personal_email, coalesce(password_hash, ''), status,
	coalesce(access_profile_id, ''), coalesce(reset_otp_hash, ''), coalesce(reset_otp_expires_at, 'epoch'),
	coalesce(reset_token_hash, ''), coalesce(reset_token_expires_at, 'epoch'), created_at, updated_at`

func scanIdentity(row *sql.Row) (*Identity, error) {
	var ident Identity
	err := row.Scan(
		&ident.ID, &ident.WorkEmail, &ident.PersonalEmail, &ident.PasswordHash, &ident.Status,
		&ident.AccessProfileID, &ident.ResetOTPHash, &ident.ResetOTPExpiresAt,
		&ident.ResetTokenHash, &ident.ResetTokenExpiresAt, &ident.CreatedAt, &ident.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ident, nil
}

func (s *PGStore) FindIdentity(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from employees where id=$1`, id)
	return scanIdentity(row)
}

func (s *PGStore) FindIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from employees
		 where lower(work_email)=lower($1) or lower(personal_email)=lower($1)`, email)
	return scanIdentity(row)
}

func (s *PGStore) RolesForIdentity(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select r.role from access_profile_roles r
		 join employees e on e.access_profile_id = r.profile_id
		 where e.id=$1 order by r.role`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *PGStore) SetResetOTP(ctx context.Context, id, otpHash string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update employees
		 set reset_otp_hash=$2, reset_otp_expires_at=$3,
		     reset_token_hash=null, reset_token_expires_at=null, updated_at=now()
		 where id=$1`, id, otpHash, expiresAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) ClearResetOTP(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update employees
		 set reset_otp_hash=null, reset_otp_expires_at=null, updated_at=now()
		 where id=$1`, id)
	return err
}

// ConsumeResetOTP clears the OTP and installs the reset token in one
// conditional statement. The otp hash guard makes the exchange single-use
// under concurrent verify attempts.
func (s *PGStore) ConsumeResetOTP(ctx context.Context, id, otpHash, tokenHash string, tokenExpiresAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update employees
		 set reset_otp_hash=null, reset_otp_expires_at=null,
		     reset_token_hash=$3, reset_token_expires_at=$4, updated_at=now()
		 where id=$1 and reset_otp_hash=$2`, id, otpHash, tokenHash, tokenExpiresAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PGStore) FindIdentityByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from employees
		 where reset_token_hash=$1 and reset_token_expires_at > $2`, tokenHash, now)
	return scanIdentity(row)
}

// ConsumeResetToken installs the new password hash and clears the token
// fields, guarded by the token still being live. Single-use enforcement.
func (s *PGStore) ConsumeResetToken(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update employees
		 set password_hash=$3, reset_token_hash=null, reset_token_expires_at=null, updated_at=now()
		 where id=$1 and reset_token_hash=$2 and reset_token_expires_at > $4`,
		id, tokenHash, passwordHash, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PGStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update employees set password_hash=$2, updated_at=now() where id=$1`, id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) AppendPasswordHistory(ctx context.Context, rec *PasswordHistory) error {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into password_history(id, employee_id, email, changed_at, expires_at, change_type)
		 values($1,$2,$3,$4,$5,$6)`,
		rec.ID, rec.EmployeeID, rec.Email, rec.ChangedAt, rec.ExpiresAt, rec.ChangeType)
	return err
}

func (s *PGStore) LatestPasswordHistory(ctx context.Context, employeeID string) (*PasswordHistory, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, employee_id, email, changed_at, expires_at, change_type
		 from password_history where employee_id=$1
		 order by changed_at desc limit 1`, employeeID)
	var rec PasswordHistory
	err := row.Scan(&rec.ID, &rec.EmployeeID, &rec.Email, &rec.ChangedAt, &rec.ExpiresAt, &rec.ChangeType)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
