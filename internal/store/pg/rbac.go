package pg

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"paydesk.org/internal/ids"
	"paydesk.org/internal/rbac"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ rbac.Store = (*Store)(nil)

func (s *Store) Users(ctx context.Context) rbac.UserStore             { return &userStore{db: s.db} }
func (s *Store) Roles(ctx context.Context) rbac.RoleStore             { return &roleStore{db: s.db} }
func (s *Store) Permissions(ctx context.Context) rbac.PermissionStore { return &permStore{db: s.db} }

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, email, password_hash, first_name, last_name, coalesce(phone, ''),
	user_type, status, email_verified, last_login_at, created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *rbac.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, first_name, last_name, phone, user_type, status, email_verified)
		values ($1, lower($2), $3, $4, $5, nullif($6, ''), $7, $8, $9)
		returning created_at, updated_at
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, string(u.UserType), string(u.Status), u.EmailVerified)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.ErrConflict
		}
		return err
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*rbac.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*rbac.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = lower($1)`, email))
}

func (s *userStore) scanUser(row *sql.Row) (*rbac.User, error) {
	var (
		u         rbac.User
		userType  string
		status    string
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone,
		&userType, &status, &u.EmailVerified, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.UserType = rbac.UserType(userType)
	u.Status = rbac.UserStatus(status)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func (s *userStore) UpdateStatus(ctx context.Context, userID string, status rbac.UserStatus) error {
	res, err := s.db.ExecContext(ctx, `
		update users set status = $2, updated_at = now() where id = $1
	`, userID, string(status))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (s *userStore) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users set last_login_at = $2, updated_at = now() where id = $1
	`, userID, at.UTC())
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

// Role store ----------------------------------------------------------------

type roleStore struct{ db *sql.DB }

const roleColumns = `id, name, coalesce(description, ''), created_at, updated_at`

func (s *roleStore) Upsert(ctx context.Context, role *rbac.Role) (*rbac.Role, error) {
	if role.ID == "" {
		role.ID = ids.New()
	}
	var out rbac.Role
	err := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, nullif($3, ''))
		on conflict (name) do nothing
		returning `+roleColumns+`
	`, role.ID, role.Name, role.Description).
		Scan(&out.ID, &out.Name, &out.Description, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict: the name exists, return the untouched record.
		return s.FindByName(ctx, role.Name)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *roleStore) Find(ctx context.Context, id string) (*rbac.Role, error) {
	return s.scanRole(s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where id = $1`, id))
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*rbac.Role, error) {
	return s.scanRole(s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where name = $1`, name))
}

func (s *roleStore) scanRole(row *sql.Row) (*rbac.Role, error) {
	var role rbac.Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *roleStore) List(ctx context.Context) ([]rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `select `+roleColumns+` from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var role rbac.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *roleStore) Grant(ctx context.Context, roleID, permissionID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		values ($1, $2)
		on conflict do nothing
	`, roleID, permissionID)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return rbac.ErrNotFound
	}
	return err
}

func (s *roleStore) Assign(ctx context.Context, a rbac.Assignment) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, a.UserID, a.RoleID)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return rbac.ErrNotFound
	}
	return err
}

func (s *roleStore) AssignmentsForUser(ctx context.Context, userID string) ([]rbac.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role_id, created_at
		from user_roles
		where user_id = $1
		order by role_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []rbac.Assignment
	for rows.Next() {
		var a rbac.Assignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.CreatedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// Permission store ----------------------------------------------------------

type permStore struct{ db *sql.DB }

const permColumns = `id, name, resource, action, coalesce(description, ''), created_at`

func (s *permStore) Upsert(ctx context.Context, p *rbac.Permission) (*rbac.Permission, error) {
	if p.ID == "" {
		p.ID = ids.New()
	}
	var out rbac.Permission
	err := s.db.QueryRowContext(ctx, `
		insert into permissions (id, name, resource, action, description)
		values ($1, $2, $3, $4, nullif($5, ''))
		on conflict (name) do nothing
		returning `+permColumns+`
	`, p.ID, p.Name, p.Resource, p.Action, p.Description).
		Scan(&out.ID, &out.Name, &out.Resource, &out.Action, &out.Description, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s.FindByName(ctx, p.Name)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *permStore) FindByName(ctx context.Context, name string) (*rbac.Permission, error) {
	var p rbac.Permission
	err := s.db.QueryRowContext(ctx,
		`select `+permColumns+` from permissions where name = $1`, name).
		Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *permStore) List(ctx context.Context, filter rbac.PermissionFilter) ([]rbac.Permission, error) {
	var (
		where []string
		args  []any
	)
	if filter.Resource != "" {
		args = append(args, filter.Resource)
		where = append(where, "resource = $"+itoa(len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		where = append(where, "action = $"+itoa(len(args)))
	}
	if filter.ExcludeName != "" {
		args = append(args, filter.ExcludeName)
		where = append(where, "name <> $"+itoa(len(args)))
	}
	query := `select ` + permColumns + ` from permissions`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *permStore) ForRole(ctx context.Context, roleID string) ([]rbac.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.resource, p.action, coalesce(p.description, ''), p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]rbac.Permission, error) {
	var perms []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// helpers --------------------------------------------------------------------

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func itoa(n int) string { return strconv.Itoa(n) }
