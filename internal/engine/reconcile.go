package engine

import (
	"starbase/internal/domain"
)

// Assignment is one requested duty change, dates already normalized to
// day granularity.
type Assignment struct {
	PersonID  int64
	Rank      string
	DutyTitle domain.DutyTitle
	StartDate string
}

// TimelineSnapshot holds the four records reconciliation decides over.
// Any of them may be nil.
type TimelineSnapshot struct {
	// PersonDetail is the person's current detail record.
	PersonDetail *domain.AstronautDetail
	// TitleDetail is the detail currently claiming the requested title
	// as its active title, whoever owns it.
	TitleDetail *domain.AstronautDetail
	// PersonDuty is the person's open duty row.
	PersonDuty *domain.AstronautDuty
	// TitleDuty is the open duty row for the requested title.
	TitleDuty *domain.AstronautDuty
}

// DutyClosure end-dates an existing duty row. Start dates are never
// changed and rows are never deleted.
type DutyClosure struct {
	ID      int64
	EndDate string
}

// WriteSet is the ordered result of reconciliation. The handler applies
// it as listed: detail insert, detail updates, duty closures, then the
// one duty insert.
type WriteSet struct {
	DetailInsert  *domain.AstronautDetail
	DetailUpdates []domain.AstronautDetail
	DutyClosures  []DutyClosure
	DutyInsert    domain.AstronautDuty
}

// Reconcile computes the writes that keep a person's duty timeline
// consistent after one new assignment. It is a pure function: it never
// touches the store.
//
// Retirement closure is asymmetric: a brand-new detail closes the
// career on the start date itself, while updating an existing detail
// closes it on the day before. Assignments after retirement are
// accepted and reopen the detail's title and rank, leaving the career
// end date stale.
func Reconcile(req Assignment, snap TimelineSnapshot) WriteSet {
	var ws WriteSet
	endDate := domain.DayBefore(req.StartDate)

	// Detail resolution. The person already holding the requested
	// title as their current title is a single in-place update; in
	// every other shape the person's detail is created or updated and
	// a foreign title holder is pushed to TRANSITION.
	if snap.PersonDetail != nil && snap.TitleDetail != nil && snap.PersonDetail.ID == snap.TitleDetail.ID {
		ws.DetailUpdates = append(ws.DetailUpdates, updatedDetail(*snap.PersonDetail, req))
	} else {
		if snap.PersonDetail == nil {
			d := domain.AstronautDetail{
				PersonID:         req.PersonID,
				CurrentDutyTitle: req.DutyTitle,
				CurrentRank:      req.Rank,
				CareerStartDate:  req.StartDate,
			}
			if req.DutyTitle.IsRetirement() {
				end := req.StartDate
				d.CareerEndDate = &end
			}
			ws.DetailInsert = &d
		} else {
			ws.DetailUpdates = append(ws.DetailUpdates, updatedDetail(*snap.PersonDetail, req))
		}
		if snap.TitleDetail != nil {
			// Details are unique per person, so a title holder that is
			// not the person's own detail belongs to someone else.
			lost := *snap.TitleDetail
			lost.CurrentDutyTitle = domain.DutyTitleTransition
			ws.DetailUpdates = append(ws.DetailUpdates, lost)
		}
	}

	// Duty resolution: close the person's open duty and the title's
	// open duty at the day before the new start, once each even when
	// they are the same row.
	if snap.PersonDuty != nil && snap.TitleDuty != nil && snap.PersonDuty.ID == snap.TitleDuty.ID {
		ws.DutyClosures = append(ws.DutyClosures, DutyClosure{ID: snap.PersonDuty.ID, EndDate: endDate})
	} else {
		if snap.PersonDuty != nil {
			ws.DutyClosures = append(ws.DutyClosures, DutyClosure{ID: snap.PersonDuty.ID, EndDate: endDate})
		}
		if snap.TitleDuty != nil {
			ws.DutyClosures = append(ws.DutyClosures, DutyClosure{ID: snap.TitleDuty.ID, EndDate: endDate})
		}
	}

	ws.DutyInsert = domain.AstronautDuty{
		PersonID:      req.PersonID,
		Rank:          req.Rank,
		DutyTitle:     req.DutyTitle,
		DutyStartDate: req.StartDate,
	}
	return ws
}

func updatedDetail(d domain.AstronautDetail, req Assignment) domain.AstronautDetail {
	d.CurrentDutyTitle = req.DutyTitle
	d.CurrentRank = req.Rank
	if req.DutyTitle.IsRetirement() {
		end := domain.DayBefore(req.StartDate)
		d.CareerEndDate = &end
	}
	return d
}
