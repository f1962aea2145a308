package deadline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"remindbot/pkg/logx"
)

func TestClientFetchDeadlinesPaginates(t *testing.T) {
	t.Parallel()
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/api/deadlines" {
			t.Errorf("path = %q", r.URL.Path)
		}
		page := r.URL.Query().Get("pagination[page]")
		pages = append(pages, page)
		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "1":
			fmt.Fprint(w, `{"data":[{"id":7,"attributes":{"name":"Lab 1","datetime":"2025-03-01T12:00:00Z",
				"comment":"bring laptop","link":"https://x.test","subject":{"data":{"attributes":{"name":"Math"}}}}}],
				"meta":{"pagination":{"page":1,"pageCount":2}}}`)
		case "2":
			fmt.Fprint(w, `{"data":[{"id":8,"attributes":{"name":"Essay","datetime":"2025-03-02T09:30:00+03:00",
				"subject":{"data":null},"chat_id":-100}}],"meta":{"pagination":{"page":2,"pageCount":2}}}`)
		default:
			t.Errorf("unexpected page %q", page)
		}
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL + "/", Token: "secret"})
	got, err := c.FetchDeadlines(context.Background())
	if err != nil {
		t.Fatalf("FetchDeadlines: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages requested = %v, want 2", pages)
	}
	if len(got) != 2 {
		t.Fatalf("deadlines = %d, want 2", len(got))
	}
	first := got[0]
	if first.ID != 7 || first.Subject != "Math" || first.Comment != "bring laptop" || first.Link != "https://x.test" {
		t.Fatalf("first = %+v", first)
	}
	if !first.Due.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("first due = %v", first.Due)
	}
	second := got[1]
	if second.Subject != "" || second.ChatID != -100 {
		t.Fatalf("second = %+v", second)
	}
	if !second.Due.Equal(time.Date(2025, 3, 2, 6, 30, 0, 0, time.UTC)) {
		t.Fatalf("second due = %v", second.Due)
	}
}

func TestClientFetchDeadlinesHTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"Forbidden"}}`)
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).FetchDeadlines(context.Background())
	var unavailable *SourceUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error = %v, want SourceUnavailableError", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusForbidden || httpErr.Message != "Forbidden" {
		t.Fatalf("http error = %+v", httpErr)
	}
}

func TestClientFetchDeadlinesSkipsUndatedRecords(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"id":1,"attributes":{"name":"Lab 1","datetime":"2025-03-01T12:00:00Z"}},
			{"id":2,"attributes":{"name":"Lab 2","datetime":null}},
			{"id":3,"attributes":{"name":"Lab 3","datetime":"tomorrow"}}],
			"meta":{"pagination":{"pageCount":1}}}`)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := NewClient(ClientConfig{BaseURL: srv.URL}, WithLogger(logx.FromZerolog(zerolog.New(&buf))))
	got, err := c.FetchDeadlines(context.Background())
	if err != nil {
		t.Fatalf("FetchDeadlines: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("deadlines = %+v, want only id 1", got)
	}
	logs := buf.String()
	for _, want := range []string{`"deadline_id":2`, `"deadline_id":3`, `"level":"warn"`} {
		if !strings.Contains(logs, want) {
			t.Fatalf("logs missing %s: %s", want, logs)
		}
	}
}

func TestClientFetchDeadlinesWarnsWhenTruncated(t *testing.T) {
	t.Parallel()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		fmt.Fprintf(w, `{"data":[{"id":%d,"attributes":{"name":"x","datetime":"2025-03-01T12:00:00Z"}}],
			"meta":{"pagination":{"page":%d,"pageCount":%d}}}`, n, n, maxPages+5)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := NewClient(ClientConfig{BaseURL: srv.URL}, WithLogger(logx.FromZerolog(zerolog.New(&buf))))
	got, err := c.FetchDeadlines(context.Background())
	if err != nil {
		t.Fatalf("FetchDeadlines: %v", err)
	}
	if len(got) != maxPages {
		t.Fatalf("len = %d, want %d", len(got), maxPages)
	}
	if requests.Load() != maxPages {
		t.Fatalf("requests = %d, want %d", requests.Load(), maxPages)
	}
	if !strings.Contains(buf.String(), "deadline pagination truncated") {
		t.Fatalf("missing truncation warning: %s", buf.String())
	}
}
