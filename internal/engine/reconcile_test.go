package engine

import (
	"testing"

	"starbase/internal/domain"
)

func strPtr(s string) *string { return &s }

func detail(id, personID int64, title domain.DutyTitle, rank, start string, end *string) *domain.AstronautDetail {
	return &domain.AstronautDetail{
		ID:               id,
		PersonID:         personID,
		CurrentDutyTitle: title,
		CurrentRank:      rank,
		CareerStartDate:  start,
		CareerEndDate:    end,
	}
}

func duty(id, personID int64, title domain.DutyTitle, rank, start string) *domain.AstronautDuty {
	return &domain.AstronautDuty{
		ID:            id,
		PersonID:      personID,
		Rank:          rank,
		DutyTitle:     title,
		DutyStartDate: start,
	}
}

func TestReconcileFirstAssignment(t *testing.T) {
	req := Assignment{PersonID: 1, Rank: "1LT", DutyTitle: "Commander", StartDate: "2024-07-17"}
	ws := Reconcile(req, TimelineSnapshot{})

	if ws.DetailInsert == nil {
		t.Fatalf("expected detail insert")
	}
	if ws.DetailInsert.CareerStartDate != "2024-07-17" {
		t.Fatalf("career start = %q", ws.DetailInsert.CareerStartDate)
	}
	if ws.DetailInsert.CareerEndDate != nil {
		t.Fatalf("career end should be nil")
	}
	if len(ws.DetailUpdates) != 0 || len(ws.DutyClosures) != 0 {
		t.Fatalf("unexpected updates/closures: %+v", ws)
	}
	if ws.DutyInsert.DutyStartDate != "2024-07-17" || ws.DutyInsert.DutyEndDate != nil {
		t.Fatalf("duty insert = %+v", ws.DutyInsert)
	}
}

func TestReconcileSuccessionClosesPreviousDuty(t *testing.T) {
	req := Assignment{PersonID: 1, Rank: "CPT", DutyTitle: "Pilot", StartDate: "2025-01-10"}
	snap := TimelineSnapshot{
		PersonDetail: detail(10, 1, "Commander", "1LT", "2024-07-17", nil),
		PersonDuty:   duty(100, 1, "Commander", "1LT", "2024-07-17"),
	}
	ws := Reconcile(req, snap)

	if ws.DetailInsert != nil {
		t.Fatalf("expected update, got insert")
	}
	if len(ws.DetailUpdates) != 1 {
		t.Fatalf("detail updates = %d", len(ws.DetailUpdates))
	}
	upd := ws.DetailUpdates[0]
	if upd.CurrentDutyTitle != "Pilot" || upd.CurrentRank != "CPT" {
		t.Fatalf("detail update = %+v", upd)
	}
	if upd.CareerEndDate != nil {
		t.Fatalf("career end should stay nil")
	}
	if len(ws.DutyClosures) != 1 {
		t.Fatalf("closures = %d", len(ws.DutyClosures))
	}
	if ws.DutyClosures[0].ID != 100 || ws.DutyClosures[0].EndDate != "2025-01-09" {
		t.Fatalf("closure = %+v", ws.DutyClosures[0])
	}
}

func TestReconcileTitleTakeoverFlipsHolderToTransition(t *testing.T) {
	req := Assignment{PersonID: 2, Rank: "MAJ", DutyTitle: "Commander", StartDate: "2025-03-01"}
	snap := TimelineSnapshot{
		TitleDetail: detail(10, 1, "Commander", "1LT", "2024-07-17", nil),
		TitleDuty:   duty(100, 1, "Commander", "1LT", "2024-07-17"),
	}
	ws := Reconcile(req, snap)

	if ws.DetailInsert == nil || ws.DetailInsert.PersonID != 2 {
		t.Fatalf("expected detail insert for new person, got %+v", ws.DetailInsert)
	}
	if len(ws.DetailUpdates) != 1 {
		t.Fatalf("detail updates = %d", len(ws.DetailUpdates))
	}
	lost := ws.DetailUpdates[0]
	if lost.ID != 10 || lost.CurrentDutyTitle != domain.DutyTitleTransition {
		t.Fatalf("displaced holder = %+v", lost)
	}
	if len(ws.DutyClosures) != 1 || ws.DutyClosures[0].EndDate != "2025-02-28" {
		t.Fatalf("closures = %+v", ws.DutyClosures)
	}
}

func TestReconcileSameRowClosedOnce(t *testing.T) {
	// Person re-assigned to the title they already hold: one detail
	// update and one duty closure, not two of each.
	d := detail(10, 1, "Commander", "1LT", "2024-07-17", nil)
	open := duty(100, 1, "Commander", "1LT", "2024-07-17")
	req := Assignment{PersonID: 1, Rank: "CPT", DutyTitle: "Commander", StartDate: "2025-06-01"}
	ws := Reconcile(req, TimelineSnapshot{
		PersonDetail: d,
		TitleDetail:  d,
		PersonDuty:   open,
		TitleDuty:    open,
	})

	if ws.DetailInsert != nil {
		t.Fatalf("unexpected detail insert")
	}
	if len(ws.DetailUpdates) != 1 {
		t.Fatalf("detail updates = %d", len(ws.DetailUpdates))
	}
	if ws.DetailUpdates[0].CurrentRank != "CPT" {
		t.Fatalf("rank = %q", ws.DetailUpdates[0].CurrentRank)
	}
	if len(ws.DutyClosures) != 1 {
		t.Fatalf("closures = %d", len(ws.DutyClosures))
	}
	if ws.DutyClosures[0].EndDate != "2025-05-31" {
		t.Fatalf("closure end = %q", ws.DutyClosures[0].EndDate)
	}
}

func TestReconcileRetirementOnNewDetail(t *testing.T) {
	// A person retiring with no prior detail closes the career on the
	// start date itself.
	req := Assignment{PersonID: 3, Rank: "COL", DutyTitle: domain.DutyTitleRetired, StartDate: "2025-08-01"}
	ws := Reconcile(req, TimelineSnapshot{})

	if ws.DetailInsert == nil {
		t.Fatalf("expected detail insert")
	}
	if ws.DetailInsert.CareerEndDate == nil || *ws.DetailInsert.CareerEndDate != "2025-08-01" {
		t.Fatalf("career end = %v", ws.DetailInsert.CareerEndDate)
	}
}

func TestReconcileRetirementOnExistingDetail(t *testing.T) {
	// Retiring an existing detail closes the career the day before the
	// retirement start date.
	req := Assignment{PersonID: 1, Rank: "COL", DutyTitle: domain.DutyTitleRetired, StartDate: "2025-08-01"}
	snap := TimelineSnapshot{
		PersonDetail: detail(10, 1, "Commander", "1LT", "2024-07-17", nil),
		PersonDuty:   duty(100, 1, "Commander", "1LT", "2024-07-17"),
	}
	ws := Reconcile(req, snap)

	if len(ws.DetailUpdates) != 1 {
		t.Fatalf("detail updates = %d", len(ws.DetailUpdates))
	}
	upd := ws.DetailUpdates[0]
	if upd.CareerEndDate == nil || *upd.CareerEndDate != "2025-07-31" {
		t.Fatalf("career end = %v", upd.CareerEndDate)
	}
	if upd.CurrentDutyTitle != domain.DutyTitleRetired {
		t.Fatalf("title = %q", upd.CurrentDutyTitle)
	}
	if len(ws.DutyClosures) != 1 || ws.DutyClosures[0].EndDate != "2025-07-31" {
		t.Fatalf("closures = %+v", ws.DutyClosures)
	}
	if ws.DutyInsert.DutyTitle != domain.DutyTitleRetired || ws.DutyInsert.DutyEndDate != nil {
		t.Fatalf("duty insert = %+v", ws.DutyInsert)
	}
}

func TestReconcilePostRetirementAssignment(t *testing.T) {
	// An assignment after retirement reopens title and rank but leaves
	// the recorded career end date alone.
	end := strPtr("2025-07-31")
	req := Assignment{PersonID: 1, Rank: "CIV", DutyTitle: "Instructor", StartDate: "2026-01-01"}
	snap := TimelineSnapshot{
		PersonDetail: detail(10, 1, domain.DutyTitleRetired, "COL", "2024-07-17", end),
	}
	ws := Reconcile(req, snap)

	if len(ws.DetailUpdates) != 1 {
		t.Fatalf("detail updates = %d", len(ws.DetailUpdates))
	}
	upd := ws.DetailUpdates[0]
	if upd.CurrentDutyTitle != "Instructor" || upd.CurrentRank != "CIV" {
		t.Fatalf("detail update = %+v", upd)
	}
	if upd.CareerEndDate == nil || *upd.CareerEndDate != "2025-07-31" {
		t.Fatalf("career end = %v", upd.CareerEndDate)
	}
}

func TestReconcileDistinctOpenDutiesBothClosed(t *testing.T) {
	// Person holds one open duty, the requested title another. Both are
	// closed at the day before the new start.
	req := Assignment{PersonID: 1, Rank: "CPT", DutyTitle: "Commander", StartDate: "2025-04-15"}
	snap := TimelineSnapshot{
		PersonDetail: detail(10, 1, "Pilot", "CPT", "2024-01-01", nil),
		TitleDetail:  detail(11, 2, "Commander", "MAJ", "2023-06-01", nil),
		PersonDuty:   duty(100, 1, "Pilot", "CPT", "2024-01-01"),
		TitleDuty:    duty(101, 2, "Commander", "MAJ", "2023-06-01"),
	}
	ws := Reconcile(req, snap)

	if len(ws.DutyClosures) != 2 {
		t.Fatalf("closures = %d", len(ws.DutyClosures))
	}
	for _, c := range ws.DutyClosures {
		if c.EndDate != "2025-04-14" {
			t.Fatalf("closure = %+v", c)
		}
	}
	if len(ws.DetailUpdates) != 2 {
		t.Fatalf("detail updates = %d", len(ws.DetailUpdates))
	}
	if ws.DetailUpdates[1].CurrentDutyTitle != domain.DutyTitleTransition {
		t.Fatalf("displaced holder = %+v", ws.DetailUpdates[1])
	}
}
