package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/clinic/internal/domain/scheduling"
	"github.com/clinicsched/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func scanSettings(row pgx.Row) (*Settings, error) {
	var (
		s   Settings
		raw []byte
	)
	if err := row.Scan(&s.ID, &raw, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.AppointmentTypes); err != nil {
		return nil, fmt.Errorf("decode appointment_types: %w", err)
	}
	for i := range s.AppointmentTypes {
		if s.AppointmentTypes[i].Kind == "" {
			s.AppointmentTypes[i].Kind = scheduling.KindBookable
		}
	}
	return &s, nil
}

func encodeTypes(types []scheduling.AppointmentType) ([]byte, error) {
	if types == nil {
		types = []scheduling.AppointmentType{}
	}
	return json.Marshal(types)
}

func (r *repoPG) Get(ctx context.Context) (*Settings, error) {
	s, err := scanSettings(r.conn(ctx).QueryRow(ctx,
		`SELECT id, appointment_types, updated_at FROM schedule_settings WHERE id = 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *repoPG) Create(ctx context.Context, types []scheduling.AppointmentType) (*Settings, error) {
	raw, err := encodeTypes(types)
	if err != nil {
		return nil, err
	}
	if _, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO schedule_settings (id, appointment_types) VALUES (1, $1) ON CONFLICT (id) DO NOTHING`, raw); err != nil {
		return nil, err
	}
	return r.Get(ctx)
}

func (r *repoPG) Save(ctx context.Context, types []scheduling.AppointmentType) (*Settings, error) {
	raw, err := encodeTypes(types)
	if err != nil {
		return nil, err
	}
	return scanSettings(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO schedule_settings (id, appointment_types, updated_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET appointment_types = EXCLUDED.appointment_types, updated_at = NOW()
		RETURNING id, appointment_types, updated_at`, raw))
}

func (r *repoPG) DeleteAll(ctx context.Context) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM schedule_settings`)
	return err
}
