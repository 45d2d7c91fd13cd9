package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/user"
)

const (
	userColumns = `id, first_name, last_name, email, role, is_active, password_hash, created_at, updated_at, last_login, parent_profile`

	// roles sort by level, not by name
	roleLevel = `CASE role WHEN 'PARENT' THEN 1 WHEN 'TEACHER' THEN 2 WHEN 'ADMIN' THEN 3 WHEN 'DEVELOPER' THEN 4 ELSE 0 END`
)

type userRow struct {
	ID            string              `db:"id"`
	FirstName     string              `db:"first_name"`
	LastName      string              `db:"last_name"`
	Email         string              `db:"email"`
	Role          user.Role           `db:"role"`
	IsActive      bool                `db:"is_active"`
	PasswordHash  []byte              `db:"password_hash"`
	CreatedAt     time.Time           `db:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at"`
	LastLogin     sql.NullTime        `db:"last_login"`
	ParentProfile *user.ParentProfile `db:"parent_profile"` // JSONB
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:            usr.ID,
		FirstName:     usr.FirstName,
		LastName:      usr.LastName,
		Email:         usr.Email,
		Role:          usr.Role,
		IsActive:      usr.IsActive,
		PasswordHash:  usr.PasswordHash,
		CreatedAt:     usr.CreatedAt.UTC(),
		UpdatedAt:     usr.UpdatedAt.UTC(),
		LastLogin:     nullTime(usr.LastLogin),
		ParentProfile: usr.ParentProfile,
	}
}

func (r userRow) user() user.User {
	return user.User{
		ID:            r.ID,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Email:         r.Email,
		Role:          r.Role,
		IsActive:      r.IsActive,
		PasswordHash:  r.PasswordHash,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
		LastLogin:     fromNullTime(r.LastLogin),
		ParentProfile: r.ParentProfile,
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	excluded := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded = append(excluded, usr.ID)
	}

	var count int
	q := `SELECT COUNT(*) FROM "user" WHERE email = $1 AND NOT (id::text = ANY($2))`
	if err := repo.db.GetContext(ctx, &count, q, email, pq.Array(excluded)); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID(usr.ID)
	q := `INSERT INTO "user" (` + userColumns + `) VALUES
		(:id, :first_name, :last_name, :email, :role, :is_active, :password_hash, :created_at, :updated_at, :last_login,
		:parent_profile)`
	if _, err := repo.db.NamedExecContext(ctx, q, toUserRow(usr)); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			where = append(where, "(first_name ILIKE "+p+" OR last_name ILIKE "+p+" OR email ILIKE "+p+")")
		}
		if len(filter.Roles) > 0 {
			roles := make([]string, 0, len(filter.Roles))
			for _, r := range filter.Roles {
				roles = append(roles, r.String())
			}
			where = append(where, "role = ANY("+arg(pq.Array(roles))+")")
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = "+arg(*filter.IsActive))
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, "created_at >= "+arg(filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, "created_at <= "+arg(filter.CreatedTo.UTC()))
		}
	}

	q := `SELECT ` + userColumns + ` FROM "user"`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	ordering = core.OrderingFields(ordering, user.OrderingFields...)
	for i, ord := range ordering {
		if ord.Field == "role" {
			ordering[i].Field = roleLevel
		}
	}
	q += orderClause(ordering, "created_at DESC")

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		row userRow
		err error
	)
	switch {
	case filter.ID != "":
		err = repo.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM "user" WHERE id::text = $1`, filter.ID)
	case filter.Email != "":
		err = repo.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM "user" WHERE email = $1`, filter.Email)
	default:
		return user.User{}, user.ErrNotFound
	}
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE "user" SET first_name = :first_name, last_name = :last_name, email = :email, role = :role,
		is_active = :is_active, password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login,
		parent_profile = :parent_profile
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toUserRow(usr))
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM "user" WHERE id::text = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting users")
}
