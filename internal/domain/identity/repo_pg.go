package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/clinic/internal/platform/db"
)

func likePattern(search string) string {
	if search == "" {
		return ""
	}
	return "%" + search + "%"
}

// -- Patient Repository --

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, prn, first_name, last_name, date_of_birth, gender, email, phone, address, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p   Patient
		dob pgtype.Date
	)
	err := row.Scan(&p.ID, &p.PRN, &p.FirstName, &p.LastName, &dob, &p.Gender, &p.Email, &p.Phone, &p.Address, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if d := db.CivilDate(dob); d != nil {
		p.DateOfBirth = *d
	}
	return &p, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

const patientSearch = `($1 = '' OR prn ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1)`

func (r *patientRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	pattern := likePattern(search)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE `+patientSearch, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients WHERE `+patientSearch+`
		ORDER BY lower(last_name), lower(first_name), id LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

const insertPatient = `
	INSERT INTO patients (prn, first_name, last_name, date_of_birth, gender, email, phone, address)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	RETURNING id, created_at`

func patientArgs(p *Patient) []any {
	return []any{p.PRN, p.FirstName, p.LastName, db.Date(p.DateOfBirth), p.Gender, p.Email, p.Phone, p.Address}
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, insertPatient, patientArgs(p)...).Scan(&p.ID, &p.CreatedAt)
}

func (r *patientRepoPG) CreateMany(ctx context.Context, patients []*Patient) error {
	b := &pgx.Batch{}
	for _, p := range patients {
		p := p
		b.Queue(insertPatient, patientArgs(p)...).QueryRow(func(row pgx.Row) error {
			return row.Scan(&p.ID, &p.CreatedAt)
		})
	}
	return sendBatch(ctx, r.pool, b)
}

func (r *patientRepoPG) DeleteAll(ctx context.Context) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients`)
	return err
}

// sendBatch runs b on the transaction in ctx when present.
func sendBatch(ctx context.Context, pool *pgxpool.Pool, b *pgx.Batch) error {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx.SendBatch(ctx, b).Close()
	}
	return pool.SendBatch(ctx, b).Close()
}

// -- Provider Repository --

type providerRepoPG struct{ pool *pgxpool.Pool }

func NewProviderRepoPG(pool *pgxpool.Pool) ProviderRepository {
	return &providerRepoPG{pool: pool}
}

func (r *providerRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const providerCols = `id, user_id, first_name, last_name, specialty, email, phone, created_at`

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Specialty, &p.Email, &p.Phone, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *providerRepoPG) GetByID(ctx context.Context, id int64) (*Provider, error) {
	return scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM providers WHERE id = $1`, id))
}

func (r *providerRepoPG) GetByUserID(ctx context.Context, userID int64) (*Provider, error) {
	return scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM providers WHERE user_id = $1`, userID))
}

const providerSearch = `($1 = '' OR first_name ILIKE $1 OR last_name ILIKE $1 OR specialty ILIKE $1)`

func (r *providerRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Provider, int, error) {
	pattern := likePattern(search)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM providers WHERE `+providerSearch, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+providerCols+` FROM providers WHERE `+providerSearch+`
		ORDER BY last_name, first_name, id LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO providers (user_id, first_name, last_name, specialty, email, phone)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at`,
		p.UserID, p.FirstName, p.LastName, p.Specialty, p.Email, p.Phone).Scan(&p.ID, &p.CreatedAt)
}

func (r *providerRepoPG) DeleteAll(ctx context.Context) error {
	rows, err := r.conn(ctx).Query(ctx, `DELETE FROM providers RETURNING user_id`)
	if err != nil {
		return err
	}
	userIDs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*int64, error) {
		var id *int64
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return err
	}
	var ids []int64
	for _, id := range userIDs {
		if id != nil {
			ids = append(ids, *id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = r.conn(ctx).Exec(ctx, `DELETE FROM users WHERE id = ANY($1)`, ids)
	return err
}

// -- User Repository --

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, username, email, first_name, last_name, password_hash, is_staff, is_superuser, is_active, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.IsStaff, &u.IsSuperuser, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username))
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (username, email, first_name, last_name, password_hash, is_staff, is_superuser, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at`,
		u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsStaff, u.IsSuperuser, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET email=$2, first_name=$3, last_name=$4, password_hash=$5, is_staff=$6, is_superuser=$7, is_active=$8
		WHERE id = $1`,
		u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsStaff, u.IsSuperuser, u.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepoPG) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
