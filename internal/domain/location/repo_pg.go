package location

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/clinic/internal/platform/db"
)

type locationRepoPG struct{ pool *pgxpool.Pool }

func NewLocationRepoPG(pool *pgxpool.Pool) LocationRepository {
	return &locationRepoPG{pool: pool}
}

func (r *locationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const locCols = `id, name, slug, phone, email, address, is_active, created_at, updated_at`

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.Name, &l.Slug, &l.Phone, &l.Email, &l.Address, &l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	return &l, err
}

func (r *locationRepoPG) one(ctx context.Context, where string, arg any) (*Location, error) {
	l, err := scanLocation(r.conn(ctx).QueryRow(ctx, `SELECT `+locCols+` FROM locations WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	hours, err := r.hours(ctx, []int64{l.ID})
	if err != nil {
		return nil, err
	}
	l.Hours = hours[l.ID]
	return l, nil
}

func (r *locationRepoPG) List(ctx context.Context, activeOnly bool) ([]*Location, error) {
	q := `SELECT ` + locCols + ` FROM locations`
	if activeOnly {
		q += ` WHERE is_active`
	}
	rows, err := r.conn(ctx).Query(ctx, q+` ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Location
	var ids []int64
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
		ids = append(ids, l.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	hours, err := r.hours(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, l := range items {
		l.Hours = hours[l.ID]
	}
	return items, nil
}

func (r *locationRepoPG) GetByID(ctx context.Context, id int64) (*Location, error) {
	return r.one(ctx, `id = $1`, id)
}

func (r *locationRepoPG) GetBySlug(ctx context.Context, slug string) (*Location, error) {
	return r.one(ctx, `lower(slug) = lower($1)`, slug)
}

func (r *locationRepoPG) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM locations WHERE slug = $1 AND id <> $2)`, slug, excludeID).Scan(&exists)
	return exists, err
}

func (r *locationRepoPG) Create(ctx context.Context, l *Location) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO locations (name, slug, phone, email, address, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at, updated_at`,
		l.Name, l.Slug, l.Phone, l.Email, l.Address, l.IsActive).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return err
	}
	if len(l.Hours) == 0 {
		l.Hours = DefaultWeek()
	}
	return r.UpsertHours(ctx, l.ID, l.Hours)
}

func (r *locationRepoPG) Update(ctx context.Context, l *Location) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE locations SET name=$2, slug=$3, phone=$4, email=$5, address=$6, is_active=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		l.ID, l.Name, l.Slug, l.Phone, l.Email, l.Address, l.IsActive).Scan(&l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET office = $2 WHERE location_id = $1 AND office <> $2`, l.ID, l.Slug)
	return err
}

func (r *locationRepoPG) UpsertHours(ctx context.Context, locationID int64, hours []Hours) error {
	batch := &pgx.Batch{}
	for _, h := range hours {
		batch.Queue(`
			INSERT INTO location_hours (location_id, weekday, open, start_time, end_time)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (location_id, weekday)
			DO UPDATE SET open = EXCLUDED.open, start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time`,
			locationID, h.Weekday, h.Open, db.Clock(h.Start), db.Clock(h.End))
	}
	return r.sendBatch(ctx, batch)
}

// sendBatch runs b on the transaction in ctx when present.
func (r *locationRepoPG) sendBatch(ctx context.Context, b *pgx.Batch) error {
	var br pgx.BatchResults
	if tx := db.TxFromContext(ctx); tx != nil {
		br = tx.SendBatch(ctx, b)
	} else {
		br = r.pool.SendBatch(ctx, b)
	}
	return br.Close()
}

func (r *locationRepoPG) GetHours(ctx context.Context, locationID int64, weekday string) (*Hours, error) {
	var (
		h          = Hours{Weekday: weekday}
		start, end pgtype.Time
	)
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT open, start_time, end_time FROM location_hours WHERE location_id = $1 AND weekday = $2`,
		locationID, weekday).Scan(&h.Open, &start, &end)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	h.Start, h.End = *db.CivilTime(start), *db.CivilTime(end)
	return &h, nil
}

func (r *locationRepoPG) hours(ctx context.Context, ids []int64) (map[int64][]Hours, error) {
	out := make(map[int64][]Hours, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT location_id, weekday, open, start_time, end_time FROM location_hours
		WHERE location_id = ANY($1)
		ORDER BY location_id, array_position(ARRAY['mon','tue','wed','thu','fri','sat','sun'], weekday::text)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id         int64
			h          Hours
			start, end pgtype.Time
		)
		if err := rows.Scan(&id, &h.Weekday, &h.Open, &start, &end); err != nil {
			return nil, err
		}
		h.Start, h.End = *db.CivilTime(start), *db.CivilTime(end)
		out[id] = append(out[id], h)
	}
	return out, rows.Err()
}

func (r *locationRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		if db.IsPgCode(err, db.CodeForeignKeyViolation) {
			return ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *locationRepoPG) DeleteAll(ctx context.Context) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM location_hours`); err != nil {
		return err
	}
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM locations`)
	return err
}

// -- Business settings --

type businessSettingsRepoPG struct{ pool *pgxpool.Pool }

func NewBusinessSettingsRepoPG(pool *pgxpool.Pool) BusinessSettingsRepository {
	return &businessSettingsRepoPG{pool: pool}
}

func (r *businessSettingsRepoPG) Get(ctx context.Context) (*BusinessSettings, error) {
	var s BusinessSettings
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO business_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING
			RETURNING id, name, show_name_in_nav, updated_at
		)
		SELECT id, NULLIF(name, ''), show_name_in_nav, updated_at FROM ins
		UNION ALL
		SELECT id, NULLIF(name, ''), show_name_in_nav, updated_at FROM business_settings WHERE id = 1
		LIMIT 1`).Scan(&s.ID, &s.Name, &s.ShowNameInNav, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *businessSettingsRepoPG) Save(ctx context.Context, s *BusinessSettings) error {
	name := ""
	if s.Name != nil {
		name = *s.Name
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO business_settings (id, name, show_name_in_nav, updated_at) VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, show_name_in_nav = EXCLUDED.show_name_in_nav, updated_at = NOW()
		RETURNING id, updated_at`, name, s.ShowNameInNav).Scan(&s.ID, &s.UpdatedAt)
}

// Reset deletes the settings row and writes s in its place.
func (r *businessSettingsRepoPG) Reset(ctx context.Context, s *BusinessSettings) error {
	if _, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM business_settings`); err != nil {
		return err
	}
	return r.Save(ctx, s)
}
