package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"remindbot/internal/deadline"
)

// Code is a JSON value the API sends either as a string or as a number.
type Code string

func (c *Code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("code %s: %w", b, err)
	}
	*c = Code(n.String())
	return nil
}

type Params struct {
	Week Code `json:"week"`
}

// Object is one entry of the group's schedule.
type Object struct {
	Form   string `json:"form"`
	Block  string `json:"block"`
	Lesson struct {
		Subject struct {
			ShortTitle  string `json:"shortTitle"`
			SubjectType string `json:"subjectType"`
		} `json:"subject"`
		Teacher *struct {
			Initials string `json:"initials"`
		} `json:"teacher"`
		AuditoriumReservation struct {
			AuditoriumNumber string `json:"auditoriumNumber"`
			ReservationTime  struct {
				Week      Code   `json:"week"`
				WeekDay   string `json:"weekDay"`
				StartTime Code   `json:"startTime"`
				EndTime   Code   `json:"endTime"`
			} `json:"reservationTime"`
		} `json:"auditoriumReservation"`
	} `json:"lesson"`
}

type ClientConfig struct {
	ParamsURL   string
	ScheduleURL string
	Timeout     time.Duration
}

// Client reads the university timetable API.
type Client struct {
	paramsURL   string
	scheduleURL string
	httpClient  *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		paramsURL:   cfg.ParamsURL,
		scheduleURL: cfg.ScheduleURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) FetchParams(ctx context.Context) (Params, error) {
	var p Params
	if err := c.get(ctx, c.paramsURL, &p); err != nil {
		return Params{}, &deadline.SourceUnavailableError{Op: "fetch schedule params", Err: err}
	}
	return p, nil
}

// FetchSchedule returns the schedule objects of the first group in the response.
func (c *Client) FetchSchedule(ctx context.Context) ([]Object, error) {
	var groups []struct {
		ScheduleObjects []Object `json:"scheduleObjects"`
	}
	if err := c.get(ctx, c.scheduleURL, &groups); err != nil {
		return nil, &deadline.SourceUnavailableError{Op: "fetch schedule", Err: err}
	}
	if len(groups) == 0 {
		return nil, nil
	}
	return groups[0].ScheduleObjects, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<12))
		return &deadline.HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
