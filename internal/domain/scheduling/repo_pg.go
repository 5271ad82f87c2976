package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/clinic/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `a.id, a.patient_id, a.provider_id, a.location_id, a.office, a.appointment_type,
	a.is_block, a.status, a.room, a.intake_status, a.notes, a.chief_complaint, a.color_code,
	a.date, a.start_time, a.end_time, a.duration, a.is_recurring, a.repeat_days,
	a.repeat_interval_weeks, a.repeat_end_date, a.repeat_occurrences, a.overlap_allowed,
	a.created_at, a.updated_at,
	CASE WHEN pa.id IS NULL THEN NULL ELSE pa.first_name || ' ' || pa.last_name END,
	COALESCE(pr.first_name || ' ' || pr.last_name, '')`

const apptFrom = ` FROM appointments a
	LEFT JOIN patients pa ON pa.id = a.patient_id
	LEFT JOIN providers pr ON pr.id = a.provider_id`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a                 Appointment
		date, repeatEnd   pgtype.Date
		start, end        pgtype.Time
		interval          int16
		repeatOccurrences *int32
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.ProviderID, &a.LocationID, &a.Office, &a.AppointmentType,
		&a.IsBlock, &a.Status, &a.Room, &a.IntakeStatus, &a.Notes, &a.ChiefComplaint, &a.ColorCode,
		&date, &start, &end, &a.Duration, &a.IsRecurring, &a.RepeatDays,
		&interval, &repeatEnd, &repeatOccurrences, &a.OverlapAllowed,
		&a.CreatedAt, &a.UpdatedAt, &a.PatientName, &a.ProviderName)
	if err != nil {
		return nil, err
	}
	if d := db.CivilDate(date); d != nil {
		a.Date = *d
	}
	a.StartTime = db.CivilTime(start)
	a.EndTime = db.CivilTime(end)
	a.RepeatEndDate = db.CivilDate(repeatEnd)
	a.RepeatIntervalWeeks = int(interval)
	if repeatOccurrences != nil {
		v := int(*repeatOccurrences)
		a.RepeatOccurrences = &v
	}
	return &a, nil
}

func writeArgs(a *Appointment) []any {
	days := a.RepeatDays
	if days == nil {
		days = []string{}
	}
	var occurrences *int32
	if a.RepeatOccurrences != nil {
		v := int32(*a.RepeatOccurrences)
		occurrences = &v
	}
	return []any{
		a.PatientID, a.ProviderID, a.LocationID, a.Office, a.AppointmentType,
		a.IsBlock, a.Status, a.Room, a.IntakeStatus, a.Notes, a.ChiefComplaint, a.ColorCode,
		db.Date(a.Date), db.NullClock(a.StartTime), db.NullClock(a.EndTime), a.Duration,
		a.IsRecurring, days, int16(a.RepeatIntervalWeeks), db.NullDate(a.RepeatEndDate),
		occurrences, a.OverlapAllowed,
	}
}

func (r *appointmentRepoPG) FindOverlapping(ctx context.Context, q OverlapQuery) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+apptFrom+`
		WHERE a.provider_id = $1 AND a.location_id = $2 AND a.date = $3
		  AND a.start_time < $5 AND a.end_time > $4
		  AND a.id <> $6
		ORDER BY a.start_time, a.id
		LIMIT 5`,
		q.ProviderID, q.LocationID, db.Date(q.Date), db.Clock(q.Start), db.Clock(q.End), q.ExcludeID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (patient_id, provider_id, location_id, office, appointment_type,
			is_block, status, room, intake_status, notes, chief_complaint, color_code,
			date, start_time, end_time, duration, is_recurring, repeat_days,
			repeat_interval_weeks, repeat_end_date, repeat_occurrences, overlap_allowed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING id, created_at, updated_at`,
		writeArgs(a)...).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	args := append(writeArgs(a), a.ID)
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET patient_id=$1, provider_id=$2, location_id=$3, office=$4,
			appointment_type=$5, is_block=$6, status=$7, room=$8, intake_status=$9, notes=$10,
			chief_complaint=$11, color_code=$12, date=$13, start_time=$14, end_time=$15,
			duration=$16, is_recurring=$17, repeat_days=$18, repeat_interval_weeks=$19,
			repeat_end_date=$20, repeat_occurrences=$21, overlap_allowed=$22, updated_at=NOW()
		WHERE id = $23
		RETURNING updated_at`, args...).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+apptFrom+` WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+apptFrom+` WHERE a.id = $1 FOR UPDATE OF a`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) LockAll(ctx context.Context) error {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return errors.New("lock appointments: no transaction in context")
	}
	_, err := tx.Exec(ctx, `LOCK TABLE appointments IN EXCLUSIVE MODE`)
	return err
}

func (r *appointmentRepoPG) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var copyColumns = []string{
	"patient_id", "provider_id", "location_id", "office", "appointment_type",
	"is_block", "status", "room", "intake_status", "notes", "chief_complaint", "color_code",
	"date", "start_time", "end_time", "duration", "is_recurring", "repeat_days",
	"repeat_interval_weeks", "repeat_end_date", "repeat_occurrences", "overlap_allowed",
}

func (r *appointmentRepoPG) CreateMany(ctx context.Context, items []*Appointment) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	return r.conn(ctx).CopyFrom(ctx, pgx.Identifier{"appointments"}, copyColumns,
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			return writeArgs(items[i]), nil
		}))
}

func (r *appointmentRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where, args := buildFilter(f)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+apptFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+apptFrom+where+
		fmt.Sprintf(` ORDER BY a.date, a.start_time NULLS LAST, a.id LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func buildFilter(f Filter) (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.ProviderID != nil {
		conds = append(conds, "a.provider_id = "+arg(*f.ProviderID))
	}
	if f.PatientID != nil {
		conds = append(conds, "a.patient_id = "+arg(*f.PatientID))
	}
	if f.LocationID != nil {
		conds = append(conds, "a.location_id = "+arg(*f.LocationID))
	}
	if f.Office != "" {
		conds = append(conds, "a.office = "+arg(f.Office))
	}
	if f.DateFrom != nil {
		conds = append(conds, "a.date >= "+arg(db.Date(*f.DateFrom)))
	}
	if f.DateTo != nil {
		conds = append(conds, "a.date <= "+arg(db.Date(*f.DateTo)))
	}
	if f.IsBlock != nil {
		conds = append(conds, "a.is_block = "+arg(*f.IsBlock))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := arg("%" + s + "%")
		conds = append(conds, fmt.Sprintf("(pa.first_name ILIKE %s OR pa.last_name ILIKE %s OR a.chief_complaint ILIKE %s)", p, p, p))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *appointmentRepoPG) CountByLocation(ctx context.Context, locationID int64, slug string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE location_id = $1 OR office = $2`, locationID, slug).Scan(&n)
	return n, err
}

func (r *appointmentRepoPG) LockProvider(ctx context.Context, providerID int64) error {
	return db.AdvisoryXactLock(ctx, db.LockClassProvider, int32(providerID))
}

func (r *appointmentRepoPG) collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
