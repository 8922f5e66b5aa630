package servicelogsdk

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

// Client is a minimal Service Log HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
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

// ServicePlan represents the API plan model (partial).
type ServicePlan struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	ServiceType    string  `json:"service_type"`
	PlannedDate    string  `json:"planned_date"`
	PlannedTime    *string `json:"planned_time,omitempty"`
	PlannedMinutes int     `json:"planned_duration_minutes"`
	Setting        string  `json:"setting"`
	ServiceCode    *string `json:"service_code,omitempty"`
	ParticipantID  *string `json:"participant_id,omitempty"`
	Status         string  `json:"status"`
	CreatedBy      string  `json:"created_by"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	ID         int64   `json:"id"`
	PlanID     string  `json:"service_plan_id"`
	Action     string  `json:"action"`
	ActorID    string  `json:"actor_id"`
	ActorRole  string  `json:"actor_role"`
	Comment    *string `json:"comment,omitempty"`
	OccurredAt string  `json:"occurred_at"`
}

// Dashboard summarizes a peer's plans.
type Dashboard struct {
	ActorID   string         `json:"actor_id"`
	Counts    map[string]int `json:"counts"`
	ThisWeek  int            `json:"this_week"`
	Overdue   int            `json:"overdue"`
	WeekStart string         `json:"week_start"`
	WeekEnd   string         `json:"week_end"`
}

// ReviewItem is one entry of the supervisor review queue.
type ReviewItem struct {
	Plan     ServicePlan `json:"plan"`
	PeerName string      `json:"peer_name"`
	Comments []string    `json:"comments,omitempty"`
	Overdue  bool        `json:"overdue"`
}

// CreatePlanInput holds the planning attributes for a new service plan.
type CreatePlanInput struct {
	ServiceType    string  `json:"service_type"`
	PlannedDate    string  `json:"planned_date"`
	PlannedTime    *string `json:"planned_time,omitempty"`
	PlannedMinutes int     `json:"planned_duration_minutes"`
	Setting        string  `json:"setting"`
	ServiceCode    *string `json:"service_code,omitempty"`
	ParticipantID  *string `json:"participant_id,omitempty"`
	LessonID       *string `json:"lesson_id,omitempty"`
	GoalID         *string `json:"goal_id,omitempty"`
	PlanningNotes  *string `json:"planning_notes,omitempty"`
	Schedule       bool    `json:"schedule,omitempty"`
}

// CompleteInput records how a service was actually delivered.
type CompleteInput struct {
	ActualMinutes      int     `json:"actual_duration_minutes"`
	AttendanceCount    int     `json:"attendance_count"`
	DeliveredAsPlanned bool    `json:"delivered_as_planned"`
	DeviationNotes     *string `json:"deviation_notes,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreatePlan creates a service plan.
func (c *Client) CreatePlan(ctx context.Context, in CreatePlanInput) (ServicePlan, error) {
	var resp ServicePlan
	err := c.do(ctx, http.MethodPost, "v0/plans", in, &resp)
	return resp, err
}

// Plan fetches one plan by id.
func (c *Client) Plan(ctx context.Context, planID string) (ServicePlan, error) {
	var resp ServicePlan
	err := c.do(ctx, http.MethodGet, c.planPath(planID, ""), nil, &resp)
	return resp, err
}

// Plans lists plans for a named view (upcoming, completed, review, all).
func (c *Client) Plans(ctx context.Context, view string) ([]ServicePlan, error) {
	var resp struct {
		Items []ServicePlan `json:"items"`
	}
	endpoint := "v0/plans"
	if view != "" {
		endpoint += "?view=" + url.QueryEscape(view)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Submit moves a draft plan into review.
func (c *Client) Submit(ctx context.Context, planID string) (ServicePlan, error) {
	return c.decide(ctx, planID, "submit", "")
}

// Approve approves a planned service, with an optional comment.
func (c *Client) Approve(ctx context.Context, planID, comment string) (ServicePlan, error) {
	return c.decide(ctx, planID, "approve", comment)
}

// Comment adds a supervisor comment without changing status.
func (c *Client) Comment(ctx context.Context, planID, comment string) (ServicePlan, error) {
	return c.decide(ctx, planID, "comment", comment)
}

// RequestChange returns a planned service to draft; comment is mandatory.
func (c *Client) RequestChange(ctx context.Context, planID, comment string) (ServicePlan, error) {
	return c.decide(ctx, planID, "request-change", comment)
}

// Verify verifies a completed service.
func (c *Client) Verify(ctx context.Context, planID, comment string) (ServicePlan, error) {
	return c.decide(ctx, planID, "verify", comment)
}

// Complete records delivery of a planned or approved service.
func (c *Client) Complete(ctx context.Context, planID string, in CompleteInput) (ServicePlan, error) {
	var resp ServicePlan
	err := c.do(ctx, http.MethodPost, c.planPath(planID, "complete"), in, &resp)
	return resp, err
}

// Cancel soft-deletes a draft or planned service.
func (c *Client) Cancel(ctx context.Context, planID string) error {
	return c.do(ctx, http.MethodDelete, c.planPath(planID, ""), nil, nil)
}

// History returns the plan's audit trail in insertion order.
func (c *Client) History(ctx context.Context, planID string) ([]AuditEvent, error) {
	var resp struct {
		Items []AuditEvent `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.planPath(planID, "history"), nil, &resp)
	return resp.Items, err
}

// Dashboard returns the caller's dashboard.
func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "v0/dashboard", nil, &resp)
	return resp, err
}

// ReviewQueue returns plans awaiting a supervisor decision.
func (c *Client) ReviewQueue(ctx context.Context) ([]ReviewItem, error) {
	var resp struct {
		Items []ReviewItem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v0/review-queue", nil, &resp)
	return resp.Items, err
}

func (c *Client) decide(ctx context.Context, planID, action, comment string) (ServicePlan, error) {
	body := map[string]any{}
	if comment != "" {
		body["comment"] = comment
	}
	var resp ServicePlan
	err := c.do(ctx, http.MethodPost, c.planPath(planID, action), body, &resp)
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
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
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

func (c *Client) planPath(planID, suffix string) string {
	p := fmt.Sprintf("v0/plans/%s", url.PathEscape(planID))
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
