package repo

import (
	"context"
	"database/sql"
	"errors"

	"starbase/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- persons ---

func (r Repo) InsertPersonTx(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO person(name) VALUES (?)`, domain.NormalizeName(name))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetPersonByName resolves a person by the store's lookup key: the
// trimmed name, matched case-insensitively.
func (r Repo) GetPersonByName(ctx context.Context, name string) (domain.Person, error) {
	var p domain.Person
	err := r.DB.QueryRowContext(ctx, `SELECT id,name FROM person WHERE name=? COLLATE NOCASE`,
		domain.NormalizeName(name)).Scan(&p.ID, &p.Name)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

const personAstronautQuery = `SELECT p.id, p.name,
	COALESCE(d.current_rank,''), COALESCE(d.current_duty_title,''),
	d.career_start_date, d.career_end_date
FROM person p
LEFT JOIN astronaut_detail d ON d.person_id = p.id`

func scanPersonAstronaut(scan func(dest ...any) error) (domain.PersonAstronaut, error) {
	var pa domain.PersonAstronaut
	var start, end sql.NullString
	if err := scan(&pa.PersonID, &pa.Name, &pa.CurrentRank, &pa.CurrentDutyTitle, &start, &end); err != nil {
		return pa, err
	}
	if start.Valid {
		pa.CareerStartDate = &start.String
	}
	if end.Valid {
		pa.CareerEndDate = &end.String
	}
	return pa, nil
}

func (r Repo) GetPersonAstronautByName(ctx context.Context, name string) (domain.PersonAstronaut, error) {
	row := r.DB.QueryRowContext(ctx, personAstronautQuery+` WHERE p.name=? COLLATE NOCASE`,
		domain.NormalizeName(name))
	pa, err := scanPersonAstronaut(row.Scan)
	if err == sql.ErrNoRows {
		return pa, ErrNotFound
	}
	return pa, err
}

func (r Repo) ListPersonAstronauts(ctx context.Context) ([]domain.PersonAstronaut, error) {
	rows, err := r.DB.QueryContext(ctx, personAstronautQuery+` ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PersonAstronaut
	for rows.Next() {
		pa, err := scanPersonAstronaut(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, pa)
	}
	return res, rows.Err()
}

// --- astronaut details ---

const detailColumns = `id, person_id, current_duty_title, current_rank, career_start_date, career_end_date`

func scanDetail(scan func(dest ...any) error) (domain.AstronautDetail, error) {
	var d domain.AstronautDetail
	var end sql.NullString
	if err := scan(&d.ID, &d.PersonID, &d.CurrentDutyTitle, &d.CurrentRank, &d.CareerStartDate, &end); err != nil {
		return d, err
	}
	if end.Valid {
		d.CareerEndDate = &end.String
	}
	return d, nil
}

// GetDetailByPersonTx returns the person's detail or nil when none exists.
func (r Repo) GetDetailByPersonTx(ctx context.Context, tx *sql.Tx, personID int64) (*domain.AstronautDetail, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+detailColumns+` FROM astronaut_detail WHERE person_id=?`, personID)
	d, err := scanDetail(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDetailByCurrentTitleTx returns the detail currently holding the
// title as its active title, or nil. Details are unique per person so
// the lowest id wins if data predating the invariant exists.
func (r Repo) GetDetailByCurrentTitleTx(ctx context.Context, tx *sql.Tx, title domain.DutyTitle) (*domain.AstronautDetail, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+detailColumns+` FROM astronaut_detail WHERE current_duty_title=? ORDER BY id LIMIT 1`, title)
	d, err := scanDetail(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r Repo) InsertDetailTx(ctx context.Context, tx *sql.Tx, d domain.AstronautDetail) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO astronaut_detail(person_id,current_duty_title,current_rank,career_start_date,career_end_date) VALUES (?,?,?,?,?)`,
		d.PersonID, d.CurrentDutyTitle, d.CurrentRank, d.CareerStartDate, nullableStringPtr(d.CareerEndDate))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateDetailTx(ctx context.Context, tx *sql.Tx, d domain.AstronautDetail) error {
	res, err := tx.ExecContext(ctx, `UPDATE astronaut_detail SET current_duty_title=?, current_rank=?, career_start_date=?, career_end_date=? WHERE id=?`,
		d.CurrentDutyTitle, d.CurrentRank, d.CareerStartDate, nullableStringPtr(d.CareerEndDate), d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- astronaut duties ---

const dutyColumns = `id, person_id, rank, duty_title, duty_start_date, duty_end_date`

func scanDuty(scan func(dest ...any) error) (domain.AstronautDuty, error) {
	var d domain.AstronautDuty
	var end sql.NullString
	if err := scan(&d.ID, &d.PersonID, &d.Rank, &d.DutyTitle, &d.DutyStartDate, &end); err != nil {
		return d, err
	}
	if end.Valid {
		d.DutyEndDate = &end.String
	}
	return d, nil
}

func dutyOrNil(row *sql.Row) (*domain.AstronautDuty, error) {
	d, err := scanDuty(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetActiveDutyByPersonTx returns the person's open duty row, most
// recent start date first, ties broken by highest id.
func (r Repo) GetActiveDutyByPersonTx(ctx context.Context, tx *sql.Tx, personID int64) (*domain.AstronautDuty, error) {
	return dutyOrNil(tx.QueryRowContext(ctx,
		`SELECT `+dutyColumns+` FROM astronaut_duty WHERE person_id=? AND duty_end_date IS NULL ORDER BY duty_start_date DESC, id DESC LIMIT 1`,
		personID))
}

// GetActiveDutyByTitleTx returns the open duty row holding the title.
func (r Repo) GetActiveDutyByTitleTx(ctx context.Context, tx *sql.Tx, title domain.DutyTitle) (*domain.AstronautDuty, error) {
	return dutyOrNil(tx.QueryRowContext(ctx,
		`SELECT `+dutyColumns+` FROM astronaut_duty WHERE duty_title=? AND duty_end_date IS NULL ORDER BY duty_start_date DESC, id DESC LIMIT 1`,
		title))
}

// DutyExists reports whether any duty row matches the exact
// (title, start date) pair, regardless of person.
func (r Repo) DutyExists(ctx context.Context, title domain.DutyTitle, startDate string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM astronaut_duty WHERE duty_title=? AND duty_start_date=? LIMIT 1`,
		title, startDate).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CloseDutyTx sets the end date on an open duty row. Start dates are
// never touched and rows are never deleted.
func (r Repo) CloseDutyTx(ctx context.Context, tx *sql.Tx, id int64, endDate string) error {
	res, err := tx.ExecContext(ctx, `UPDATE astronaut_duty SET duty_end_date=? WHERE id=?`, endDate, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertDutyTx(ctx context.Context, tx *sql.Tx, d domain.AstronautDuty) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO astronaut_duty(person_id,rank,duty_title,duty_start_date,duty_end_date) VALUES (?,?,?,?,?)`,
		d.PersonID, d.Rank, d.DutyTitle, d.DutyStartDate, nullableStringPtr(d.DutyEndDate))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListDutiesByPerson returns the full duty history, newest first.
func (r Repo) ListDutiesByPerson(ctx context.Context, personID int64) ([]domain.AstronautDuty, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+dutyColumns+` FROM astronaut_duty WHERE person_id=? ORDER BY duty_start_date DESC, id DESC`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AstronautDuty
	for rows.Next() {
		d, err := scanDuty(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// --- events ---

const eventColumns = `id, ts, type, entity_kind, entity_id, actor_id, payload_json`

func scanEvent(scan func(dest ...any) error) (domain.Event, error) {
	var e domain.Event
	var entityID sql.NullString
	if err := scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
		return e, err
	}
	if entityID.Valid {
		e.EntityID = entityID.String
	}
	return e, nil
}

// LatestEvents returns up to limit events, newest first, optionally
// starting below a cursor id.
func (r Repo) LatestEvents(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + eventColumns + ` FROM events`
	args := []any{}
	if cursor > 0 {
		query += ` WHERE id<?`
		args = append(args, cursor)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	return r.listEvents(ctx, query, args...)
}

// EventsAfter returns events with ids greater than the cursor in
// ascending order; used by the webhook dispatcher.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.listEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

// LatestEventID returns the most recent event id, zero when empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

func (r Repo) listEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
