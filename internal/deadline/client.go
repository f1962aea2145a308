package deadline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"remindbot/pkg/logx"
)

const (
	defaultDeadlinesPath = "/api/deadlines"
	defaultPageSize      = 100
	maxPages             = 50
)

// ClientConfig configures the records API client.
type ClientConfig struct {
	BaseURL  string
	Token    string
	Path     string
	PageSize int
	Timeout  time.Duration
}

// Client reads deadlines from the records API.
type Client struct {
	baseURL    string
	path       string
	token      string
	pageSize   int
	httpClient *http.Client
	log        logx.Logger
}

type ClientOption func(*Client)

func WithLogger(log logx.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	if cfg.Path == "" {
		cfg.Path = defaultDeadlinesPath
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		path:       cfg.Path,
		token:      cfg.Token,
		pageSize:   cfg.PageSize,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c
}

type apiEntry struct {
	ID         int64 `json:"id"`
	Attributes struct {
		Name     string  `json:"name"`
		Datetime *string `json:"datetime"`
		Comment  *string `json:"comment"`
		Link     *string `json:"link"`
		ChatID   *int64  `json:"chat_id"`
		Subject  *struct {
			Data *struct {
				Attributes struct {
					Name string `json:"name"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"subject"`
	} `json:"attributes"`
}

type apiPage struct {
	Data []apiEntry `json:"data"`
	Meta struct {
		Pagination struct {
			Page      int `json:"page"`
			PageCount int `json:"pageCount"`
		} `json:"pagination"`
	} `json:"meta"`
}

// FetchDeadlines walks every page of the deadlines collection.
// Records without a usable due time are skipped with a warning.
func (c *Client) FetchDeadlines(ctx context.Context) ([]Deadline, error) {
	var out []Deadline
	for page := 1; ; page++ {
		var p apiPage
		if err := c.get(ctx, c.pageQuery(page), &p); err != nil {
			return nil, &SourceUnavailableError{Op: "fetch deadlines", Err: err}
		}
		for _, e := range p.Data {
			d, err := e.toDeadline()
			if err != nil {
				c.log.Warn("deadline skipped", logx.Int64("deadline_id", e.ID), logx.Err(err))
				continue
			}
			out = append(out, d)
		}
		total := p.Meta.Pagination.PageCount
		if total <= page || len(p.Data) == 0 {
			break
		}
		if page == maxPages {
			c.log.Warn("deadline pagination truncated",
				logx.Int("pages_read", page), logx.Int("page_count", total), logx.Int("page_size", c.pageSize))
			break
		}
	}
	return out, nil
}

func (c *Client) pageQuery(page int) string {
	params := url.Values{}
	params.Set("populate", "subject")
	params.Set("pagination[page]", strconv.Itoa(page))
	params.Set("pagination[pageSize]", strconv.Itoa(c.pageSize))
	return c.path + "?" + params.Encode()
}

func (e apiEntry) toDeadline() (Deadline, error) {
	a := e.Attributes
	if a.Datetime == nil {
		return Deadline{}, fmt.Errorf("deadline %d: datetime is null", e.ID)
	}
	due, err := time.Parse(time.RFC3339, *a.Datetime)
	if err != nil {
		return Deadline{}, fmt.Errorf("deadline %d: datetime %q: %w", e.ID, *a.Datetime, err)
	}
	d := Deadline{ID: e.ID, Name: a.Name, Due: due}
	if a.Subject != nil && a.Subject.Data != nil {
		d.Subject = a.Subject.Data.Attributes.Name
	}
	if a.Comment != nil {
		d.Comment = *a.Comment
	}
	if a.Link != nil {
		d.Link = *a.Link
	}
	if a.ChatID != nil {
		d.ChatID = *a.ChatID
	}
	return d, nil
}

// HTTPError is a non-2xx response from the records API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error.Message}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
