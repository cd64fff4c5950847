package server

import (
	"encoding/json"

	"starbase/internal/domain"
)

// Request payloads

type CreatePersonRequest struct {
	Name string `json:"name"`
}

type AssignDutyRequest struct {
	Name          string `json:"name"`
	Rank          string `json:"rank"`
	DutyTitle     string `json:"duty_title"`
	DutyStartDate string `json:"duty_start_date" format:"date"`
}

// Response payloads

type PersonResponse struct {
	PersonID         int64   `json:"person_id"`
	Name             string  `json:"name"`
	CurrentRank      string  `json:"current_rank,omitempty"`
	CurrentDutyTitle string  `json:"current_duty_title,omitempty"`
	CareerStartDate  *string `json:"career_start_date,omitempty" format:"date"`
	CareerEndDate    *string `json:"career_end_date,omitempty" format:"date"`
}

type DutyResponse struct {
	ID            int64   `json:"id"`
	PersonID      int64   `json:"person_id"`
	Rank          string  `json:"rank"`
	DutyTitle     string  `json:"duty_title"`
	DutyStartDate string  `json:"duty_start_date" format:"date"`
	DutyEndDate   *string `json:"duty_end_date,omitempty" format:"date"`
}

// AssignDutyResponse mirrors the command's typed result: callers check
// the success flag rather than relying on the HTTP status alone.
type AssignDutyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	ID      int64  `json:"id,omitempty"`
}

type PersonDutiesResponse struct {
	Person PersonResponse `json:"person"`
	Duties []DutyResponse `json:"duties"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Conversion helpers

func personResponse(pa domain.PersonAstronaut) PersonResponse {
	return PersonResponse(pa)
}

func mapPersons(in []domain.PersonAstronaut) []PersonResponse {
	res := make([]PersonResponse, 0, len(in))
	for _, pa := range in {
		res = append(res, personResponse(pa))
	}
	return res
}

func dutyResponse(d domain.AstronautDuty) DutyResponse {
	return DutyResponse{
		ID:            d.ID,
		PersonID:      d.PersonID,
		Rank:          d.Rank,
		DutyTitle:     string(d.DutyTitle),
		DutyStartDate: d.DutyStartDate,
		DutyEndDate:   d.DutyEndDate,
	}
}

func mapDuties(in []domain.AstronautDuty) []DutyResponse {
	res := make([]DutyResponse, 0, len(in))
	for _, d := range in {
		res = append(res, dutyResponse(d))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapEvents(in []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(in))
	for _, e := range in {
		res = append(res, eventResponse(e))
	}
	return res
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}
