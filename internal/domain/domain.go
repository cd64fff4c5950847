package domain

import (
	"fmt"
	"strings"
	"time"
)

// DutyTitle is a free-text role name except for the two sentinel
// values the reconciler gives special meaning to.
type DutyTitle string

const (
	// DutyTitleRetired closes a person's career when assigned.
	DutyTitleRetired DutyTitle = "RETIRED"
	// DutyTitleTransition marks a detail whose title was claimed by a
	// newer assignment.
	DutyTitleTransition DutyTitle = "TRANSITION"
)

func (t DutyTitle) IsRetirement() bool { return t == DutyTitleRetired }
func (t DutyTitle) IsTransition() bool { return t == DutyTitleTransition }

type Person struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AstronautDetail is the current career snapshot, at most one per person.
type AstronautDetail struct {
	ID               int64     `json:"id"`
	PersonID         int64     `json:"person_id"`
	CurrentDutyTitle DutyTitle `json:"current_duty_title"`
	CurrentRank      string    `json:"current_rank"`
	CareerStartDate  string    `json:"career_start_date" format:"date"`
	CareerEndDate    *string   `json:"career_end_date,omitempty" format:"date"`
}

// AstronautDuty is one history row per assignment event. A nil
// DutyEndDate means the assignment is currently in force.
type AstronautDuty struct {
	ID            int64     `json:"id"`
	PersonID      int64     `json:"person_id"`
	Rank          string    `json:"rank"`
	DutyTitle     DutyTitle `json:"duty_title"`
	DutyStartDate string    `json:"duty_start_date" format:"date"`
	DutyEndDate   *string   `json:"duty_end_date,omitempty" format:"date"`
}

// PersonAstronaut is the read-side join of a person and their detail.
// Detail fields are empty when the person has never been assigned.
type PersonAstronaut struct {
	PersonID         int64   `json:"person_id"`
	Name             string  `json:"name"`
	CurrentRank      string  `json:"current_rank,omitempty"`
	CurrentDutyTitle string  `json:"current_duty_title,omitempty"`
	CareerStartDate  *string `json:"career_start_date,omitempty" format:"date"`
	CareerEndDate    *string `json:"career_end_date,omitempty" format:"date"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// DateLayout is the storage form for all duty and career dates; time of
// day is discarded at the boundary.
const DateLayout = "2006-01-02"

// NormalizeDate truncates a date or RFC3339 timestamp to day granularity.
func NormalizeDate(in string) (string, error) {
	s := strings.TrimSpace(in)
	for _, layout := range []string{DateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", fmt.Errorf("invalid date %q, want YYYY-MM-DD", in)
}

// DayBefore returns the day preceding a normalized date.
func DayBefore(date string) string {
	t, _ := time.Parse(DateLayout, date)
	return t.AddDate(0, 0, -1).Format(DateLayout)
}

// NormalizeName is the store's lookup key for person names: trimmed,
// compared case-insensitively by the unique index.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}
