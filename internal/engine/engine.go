package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"starbase/internal/domain"
	"starbase/internal/events"
	"starbase/internal/repo"
)

// Admission failures, raised before any write path runs.
var (
	ErrUnknownPerson       = errors.New("no person with that name exists")
	ErrDuplicateAssignment = errors.New("a duty with that title and start date already exists")
	ErrPersonExists        = errors.New("person already exists")
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Now:    time.Now,
	}
}

// CreatePerson registers a new person. Names are unique under the
// store's trimmed, case-insensitive lookup key.
func (e Engine) CreatePerson(ctx context.Context, name, actorID string) (domain.Person, error) {
	name = domain.NormalizeName(name)
	if name == "" {
		return domain.Person{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetPersonByName(ctx, name); err == nil {
		return domain.Person{}, ErrPersonExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Person{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Person{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertPersonTx(ctx, tx, name)
	if err != nil {
		return domain.Person{}, fmt.Errorf("insert person: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "person.created", "person", strconv.FormatInt(id, 10), actorID, events.EventPayload{"name": name}); err != nil {
		return domain.Person{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Person{}, err
	}
	return domain.Person{ID: id, Name: name}, nil
}

// AssignDutyRequest is the duty-assignment command.
type AssignDutyRequest struct {
	Name          string
	Rank          string
	DutyTitle     string
	DutyStartDate string
	ActorID       string
}

// AssignDutyResult is the command outcome. Callers must check Success;
// failures past the admission guard are carried here, not returned as
// errors.
type AssignDutyResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	ID      int64  `json:"id,omitempty"`
}

// AssignDuty runs the admission guard, then reconciles and applies the
// assignment in a single transaction. Admission failures
// (ErrUnknownPerson, ErrDuplicateAssignment, malformed input) come back
// as errors with nothing written; any later failure rolls the
// transaction back and is reported through the result's Message.
func (e Engine) AssignDuty(ctx context.Context, req AssignDutyRequest) (AssignDutyResult, error) {
	name := domain.NormalizeName(req.Name)
	if name == "" {
		return AssignDutyResult{}, errors.New("name is required")
	}
	if req.Rank == "" {
		return AssignDutyResult{}, errors.New("rank is required")
	}
	title := domain.DutyTitle(domain.NormalizeName(req.DutyTitle))
	if title == "" {
		return AssignDutyResult{}, errors.New("duty title is required")
	}
	startDate, err := domain.NormalizeDate(req.DutyStartDate)
	if err != nil {
		return AssignDutyResult{}, err
	}

	person, err := e.Repo.GetPersonByName(ctx, name)
	if errors.Is(err, repo.ErrNotFound) {
		return AssignDutyResult{}, ErrUnknownPerson
	}
	if err != nil {
		return AssignDutyResult{}, err
	}
	taken, err := e.Repo.DutyExists(ctx, title, startDate)
	if err != nil {
		return AssignDutyResult{}, err
	}
	if taken {
		return AssignDutyResult{}, ErrDuplicateAssignment
	}

	id, err := e.applyAssignment(ctx, Assignment{
		PersonID:  person.ID,
		Rank:      req.Rank,
		DutyTitle: title,
		StartDate: startDate,
	}, req.ActorID)
	if err != nil {
		return AssignDutyResult{Success: false, Message: err.Error()}, nil
	}
	return AssignDutyResult{Success: true, ID: id}, nil
}

// applyAssignment loads the timeline snapshot, reconciles it and writes
// the result, all inside one transaction.
func (e Engine) applyAssignment(ctx context.Context, req Assignment, actorID string) (int64, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	snap, err := e.loadSnapshot(ctx, tx, req)
	if err != nil {
		return 0, err
	}
	ws := Reconcile(req, snap)

	if ws.DetailInsert != nil {
		if _, err := e.Repo.InsertDetailTx(ctx, tx, *ws.DetailInsert); err != nil {
			return 0, fmt.Errorf("insert detail: %w", err)
		}
	}
	for _, d := range ws.DetailUpdates {
		if err := e.Repo.UpdateDetailTx(ctx, tx, d); err != nil {
			return 0, fmt.Errorf("update detail %d: %w", d.ID, err)
		}
	}
	for _, c := range ws.DutyClosures {
		if err := e.Repo.CloseDutyTx(ctx, tx, c.ID, c.EndDate); err != nil {
			return 0, fmt.Errorf("close duty %d: %w", c.ID, err)
		}
	}
	id, err := e.Repo.InsertDutyTx(ctx, tx, ws.DutyInsert)
	if err != nil {
		return 0, fmt.Errorf("insert duty: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "duty.assigned", "duty", strconv.FormatInt(id, 10), actorID, events.EventPayload{
		"person_id":  req.PersonID,
		"rank":       req.Rank,
		"duty_title": string(req.DutyTitle),
		"start_date": req.StartDate,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (e Engine) loadSnapshot(ctx context.Context, tx *sql.Tx, req Assignment) (TimelineSnapshot, error) {
	var snap TimelineSnapshot
	var err error
	if snap.PersonDetail, err = e.Repo.GetDetailByPersonTx(ctx, tx, req.PersonID); err != nil {
		return snap, fmt.Errorf("load person detail: %w", err)
	}
	if snap.TitleDetail, err = e.Repo.GetDetailByCurrentTitleTx(ctx, tx, req.DutyTitle); err != nil {
		return snap, fmt.Errorf("load title detail: %w", err)
	}
	if snap.PersonDuty, err = e.Repo.GetActiveDutyByPersonTx(ctx, tx, req.PersonID); err != nil {
		return snap, fmt.Errorf("load person duty: %w", err)
	}
	if snap.TitleDuty, err = e.Repo.GetActiveDutyByTitleTx(ctx, tx, req.DutyTitle); err != nil {
		return snap, fmt.Errorf("load title duty: %w", err)
	}
	return snap, nil
}

// SeedDemo loads the demo roster: John Doe holding Commander since
// 2024-07-17, and Jane Doe with no assignments yet. Safe to run twice.
func (e Engine) SeedDemo(ctx context.Context) error {
	for _, name := range []string{"John Doe", "Jane Doe"} {
		if _, err := e.CreatePerson(ctx, name, "seed"); err != nil && !errors.Is(err, ErrPersonExists) {
			return err
		}
	}
	res, err := e.AssignDuty(ctx, AssignDutyRequest{
		Name:          "John Doe",
		Rank:          "1LT",
		DutyTitle:     "Commander",
		DutyStartDate: "2024-07-17",
		ActorID:       "seed",
	})
	if errors.Is(err, ErrDuplicateAssignment) {
		return nil
	}
	if err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.Message)
	}
	return nil
}
