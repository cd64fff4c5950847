package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"starbase/internal/db"
	"starbase/internal/domain"
	"starbase/internal/engine"
	"starbase/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	eng.Now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func mustCreatePerson(t *testing.T, env testEnv, name string) domain.Person {
	t.Helper()
	p, err := env.Engine.CreatePerson(env.Ctx, name, "tester")
	if err != nil {
		t.Fatalf("create person %q: %v", name, err)
	}
	return p
}

func mustAssign(t *testing.T, env testEnv, name, rank, title, start string) int64 {
	t.Helper()
	res, err := env.Engine.AssignDuty(env.Ctx, engine.AssignDutyRequest{
		Name: name, Rank: rank, DutyTitle: title, DutyStartDate: start, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("assign %s/%s to %q: %v", title, start, name, err)
	}
	if !res.Success {
		t.Fatalf("assign %s/%s to %q failed: %s", title, start, name, res.Message)
	}
	return res.ID
}

func TestCreatePersonUniqueName(t *testing.T) {
	env := newTestEnv(t)
	mustCreatePerson(t, env, "John Doe")

	if _, err := env.Engine.CreatePerson(env.Ctx, "John Doe", "tester"); !errors.Is(err, engine.ErrPersonExists) {
		t.Fatalf("duplicate name: got %v", err)
	}
	// Lookup key is trimmed and case-insensitive.
	if _, err := env.Engine.CreatePerson(env.Ctx, "  john doe  ", "tester"); !errors.Is(err, engine.ErrPersonExists) {
		t.Fatalf("case-folded duplicate: got %v", err)
	}
}

func TestAssignDutyUnknownPerson(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AssignDuty(env.Ctx, engine.AssignDutyRequest{
		Name: "Nobody", Rank: "1LT", DutyTitle: "Commander", DutyStartDate: "2024-07-17", ActorID: "tester",
	})
	if !errors.Is(err, engine.ErrUnknownPerson) {
		t.Fatalf("got %v", err)
	}
}

func TestAssignDutyDuplicatePair(t *testing.T) {
	env := newTestEnv(t)
	mustCreatePerson(t, env, "John Doe")
	mustCreatePerson(t, env, "Jane Doe")
	mustAssign(t, env, "John Doe", "1LT", "Commander", "2024-07-17")

	// The same (title, start date) pair is rejected even for another
	// person, and even though John's row is now closed-or-open.
	_, err := env.Engine.AssignDuty(env.Ctx, engine.AssignDutyRequest{
		Name: "Jane Doe", Rank: "CPT", DutyTitle: "Commander", DutyStartDate: "2024-07-17", ActorID: "tester",
	})
	if !errors.Is(err, engine.ErrDuplicateAssignment) {
		t.Fatalf("got %v", err)
	}
}

func TestAssignDutyRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	mustCreatePerson(t, env, "John Doe")
	cases := []engine.AssignDutyRequest{
		{Name: "", Rank: "1LT", DutyTitle: "Commander", DutyStartDate: "2024-07-17"},
		{Name: "John Doe", Rank: "", DutyTitle: "Commander", DutyStartDate: "2024-07-17"},
		{Name: "John Doe", Rank: "1LT", DutyTitle: "", DutyStartDate: "2024-07-17"},
		{Name: "John Doe", Rank: "1LT", DutyTitle: "Commander", DutyStartDate: "not-a-date"},
	}
	for i, req := range cases {
		if _, err := env.Engine.AssignDuty(env.Ctx, req); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestAssignDutySuccession(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreatePerson(t, env, "John Doe")
	mustAssign(t, env, "John Doe", "1LT", "Commander", "2024-07-17")
	mustAssign(t, env, "John Doe", "CPT", "Pilot", "2025-01-10")

	duties, err := env.Engine.Repo.ListDutiesByPerson(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("list duties: %v", err)
	}
	if len(duties) != 2 {
		t.Fatalf("duties = %d", len(duties))
	}
	// Newest first: the open Pilot row, then the closed Commander row.
	if duties[0].DutyTitle != "Pilot" || duties[0].DutyEndDate != nil {
		t.Fatalf("open duty = %+v", duties[0])
	}
	if duties[1].DutyTitle != "Commander" {
		t.Fatalf("closed duty = %+v", duties[1])
	}
	if duties[1].DutyEndDate == nil || *duties[1].DutyEndDate != "2025-01-09" {
		t.Fatalf("closed end = %v", duties[1].DutyEndDate)
	}

	pa, err := env.Engine.Repo.GetPersonAstronautByName(env.Ctx, "John Doe")
	if err != nil {
		t.Fatalf("get person: %v", err)
	}
	if pa.CurrentDutyTitle != "Pilot" || pa.CurrentRank != "CPT" {
		t.Fatalf("current status = %+v", pa)
	}
	if pa.CareerStartDate == nil || *pa.CareerStartDate != "2024-07-17" {
		t.Fatalf("career start = %v", pa.CareerStartDate)
	}
}

func TestAssignDutyTitleTakeover(t *testing.T) {
	env := newTestEnv(t)
	john := mustCreatePerson(t, env, "John Doe")
	mustCreatePerson(t, env, "Jane Doe")
	mustAssign(t, env, "John Doe", "1LT", "Commander", "2024-07-17")
	mustAssign(t, env, "Jane Doe", "MAJ", "Commander", "2025-03-01")

	johnPA, err := env.Engine.Repo.GetPersonAstronautByName(env.Ctx, "John Doe")
	if err != nil {
		t.Fatalf("get john: %v", err)
	}
	if johnPA.CurrentDutyTitle != string(domain.DutyTitleTransition) {
		t.Fatalf("john title = %q", johnPA.CurrentDutyTitle)
	}

	janePA, err := env.Engine.Repo.GetPersonAstronautByName(env.Ctx, "Jane Doe")
	if err != nil {
		t.Fatalf("get jane: %v", err)
	}
	if janePA.CurrentDutyTitle != "Commander" || janePA.CurrentRank != "MAJ" {
		t.Fatalf("jane status = %+v", janePA)
	}

	johnDuties, err := env.Engine.Repo.ListDutiesByPerson(env.Ctx, john.ID)
	if err != nil {
		t.Fatalf("list john duties: %v", err)
	}
	if len(johnDuties) != 1 {
		t.Fatalf("john duties = %d", len(johnDuties))
	}
	if johnDuties[0].DutyEndDate == nil || *johnDuties[0].DutyEndDate != "2025-02-28" {
		t.Fatalf("john duty end = %v", johnDuties[0].DutyEndDate)
	}
}

func TestAssignDutyRetirement(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreatePerson(t, env, "John Doe")
	mustAssign(t, env, "John Doe", "1LT", "Commander", "2024-07-17")
	mustAssign(t, env, "John Doe", "COL", string(domain.DutyTitleRetired), "2025-08-01")

	pa, err := env.Engine.Repo.GetPersonAstronautByName(env.Ctx, "John Doe")
	if err != nil {
		t.Fatalf("get person: %v", err)
	}
	if pa.CurrentDutyTitle != string(domain.DutyTitleRetired) {
		t.Fatalf("title = %q", pa.CurrentDutyTitle)
	}
	if pa.CareerEndDate == nil || *pa.CareerEndDate != "2025-07-31" {
		t.Fatalf("career end = %v", pa.CareerEndDate)
	}

	duties, err := env.Engine.Repo.ListDutiesByPerson(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("list duties: %v", err)
	}
	if len(duties) != 2 {
		t.Fatalf("duties = %d", len(duties))
	}
	// The retirement row itself stays open.
	if duties[0].DutyTitle != domain.DutyTitleRetired || duties[0].DutyEndDate != nil {
		t.Fatalf("retirement duty = %+v", duties[0])
	}
}

func TestAssignDutyRetirementWithoutHistory(t *testing.T) {
	env := newTestEnv(t)
	mustCreatePerson(t, env, "Jane Doe")
	mustAssign(t, env, "Jane Doe", "COL", string(domain.DutyTitleRetired), "2025-08-01")

	pa, err := env.Engine.Repo.GetPersonAstronautByName(env.Ctx, "Jane Doe")
	if err != nil {
		t.Fatalf("get person: %v", err)
	}
	// Fresh detail: the career closes on the retirement start date.
	if pa.CareerEndDate == nil || *pa.CareerEndDate != "2025-08-01" {
		t.Fatalf("career end = %v", pa.CareerEndDate)
	}
}

func TestOnePersonOneOpenDuty(t *testing.T) {
	env := newTestEnv(t)
	p := mustCreatePerson(t, env, "John Doe")
	mustAssign(t, env, "John Doe", "1LT", "Commander", "2024-07-17")
	mustAssign(t, env, "John Doe", "CPT", "Pilot", "2025-01-10")
	mustAssign(t, env, "John Doe", "MAJ", "Navigator", "2025-06-01")

	duties, err := env.Engine.Repo.ListDutiesByPerson(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("list duties: %v", err)
	}
	open := 0
	for _, d := range duties {
		if d.DutyEndDate == nil {
			open++
		}
	}
	if open != 1 {
		t.Fatalf("open duties = %d", open)
	}
}

func TestEventsAppended(t *testing.T) {
	env := newTestEnv(t)
	mustCreatePerson(t, env, "John Doe")
	mustAssign(t, env, "John Doe", "1LT", "Commander", "2024-07-17")

	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, 0)
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d", len(events))
	}
	if events[0].Type != "duty.assigned" || events[1].Type != "person.created" {
		t.Fatalf("event order = %s, %s", events[0].Type, events[1].Type)
	}
	if events[0].ActorID != "tester" {
		t.Fatalf("actor = %q", events[0].ActorID)
	}
}

func TestSeedDemoIdempotent(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.SeedDemo(env.Ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := env.Engine.SeedDemo(env.Ctx); err != nil {
		t.Fatalf("seed again: %v", err)
	}

	persons, err := env.Engine.Repo.ListPersonAstronauts(env.Ctx)
	if err != nil {
		t.Fatalf("list persons: %v", err)
	}
	if len(persons) != 2 {
		t.Fatalf("persons = %d", len(persons))
	}
	john, err := env.Engine.Repo.GetPersonAstronautByName(env.Ctx, "John Doe")
	if err != nil {
		t.Fatalf("get john: %v", err)
	}
	if john.CurrentDutyTitle != "Commander" || john.CurrentRank != "1LT" {
		t.Fatalf("john status = %+v", john)
	}
}
