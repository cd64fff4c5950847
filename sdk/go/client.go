package starbasesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Starbase HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Person represents a roster entry with its current career status.
type Person struct {
	PersonID         int64   `json:"person_id"`
	Name             string  `json:"name"`
	CurrentRank      string  `json:"current_rank,omitempty"`
	CurrentDutyTitle string  `json:"current_duty_title,omitempty"`
	CareerStartDate  *string `json:"career_start_date,omitempty"`
	CareerEndDate    *string `json:"career_end_date,omitempty"`
}

// Duty represents one assignment in a person's history.
type Duty struct {
	ID            int64   `json:"id"`
	PersonID      int64   `json:"person_id"`
	Rank          string  `json:"rank"`
	DutyTitle     string  `json:"duty_title"`
	DutyStartDate string  `json:"duty_start_date"`
	DutyEndDate   *string `json:"duty_end_date,omitempty"`
}

// AssignDutyResult is the outcome of an assignment. Check Success; the
// server reports reconciliation failures here with a 200 status.
type AssignDutyResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	ID      int64  `json:"id,omitempty"`
}

// PersonDuties bundles a person with their duty history.
type PersonDuties struct {
	Person Person `json:"person"`
	Duties []Duty `json:"duties"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreatePerson registers a person.
func (c *Client) CreatePerson(ctx context.Context, name string) (Person, error) {
	var resp Person
	err := c.do(ctx, http.MethodPost, "v1/persons", map[string]any{"name": name}, &resp)
	return resp, err
}

// ListPersons returns the roster.
func (c *Client) ListPersons(ctx context.Context) ([]Person, error) {
	var resp []Person
	err := c.do(ctx, http.MethodGet, "v1/persons", nil, &resp)
	return resp, err
}

// GetPerson fetches a person by name.
func (c *Client) GetPerson(ctx context.Context, name string) (Person, error) {
	var resp Person
	endpoint := fmt.Sprintf("v1/persons/%s", url.PathEscape(name))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AssignDuty assigns a duty to a person.
func (c *Client) AssignDuty(ctx context.Context, name, rank, dutyTitle, dutyStartDate string) (AssignDutyResult, error) {
	body := map[string]any{
		"name":            name,
		"rank":            rank,
		"duty_title":      dutyTitle,
		"duty_start_date": dutyStartDate,
	}
	var resp AssignDutyResult
	err := c.do(ctx, http.MethodPost, "v1/duties", body, &resp)
	return resp, err
}

// Duties returns a person's duty history, newest first.
func (c *Client) Duties(ctx context.Context, name string) (PersonDuties, error) {
	var resp PersonDuties
	endpoint := fmt.Sprintf("v1/persons/%s/duties", url.PathEscape(name))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v1/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
