package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Unit is the granularity of a threshold lookahead.
type Unit string

const (
	Minute Unit = "minute"
	Hour   Unit = "hour"
	Day    Unit = "day"
)

func (u Unit) duration() (time.Duration, error) {
	switch u {
	case Minute:
		return time.Minute, nil
	case Hour:
		return time.Hour, nil
	case Day:
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown threshold unit %q", string(u))
}

// Threshold is a named lookahead window. A deadline fires for a threshold
// once its due time is within Lookahead of now.
type Threshold struct {
	Value int
	Unit  Unit
	Title string
}

// ID is stable across restarts; persisted state is keyed by it.
func (t Threshold) ID() string {
	return fmt.Sprintf("%d_%s", t.Value, t.Unit)
}

func (t Threshold) Lookahead() time.Duration {
	d, err := t.Unit.duration()
	if err != nil {
		return 0
	}
	return time.Duration(t.Value) * d
}

// DefaultThresholds fire as a deadline starts and one hour before it.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Value: 0, Unit: Minute, Title: "‼️ Starting right now:"},
		{Value: 1, Unit: Hour, Title: "‼️ Starting in an hour:"},
	}
}

// Registry is the fixed, ordered threshold list.
type Registry struct {
	items []Threshold
}

func NewRegistry(ts ...Threshold) (*Registry, error) {
	if len(ts) == 0 {
		return nil, errors.New("reminder: registry needs at least one threshold")
	}
	seen := make(map[string]struct{}, len(ts))
	items := make([]Threshold, 0, len(ts))
	for _, t := range ts {
		if t.Value < 0 {
			return nil, fmt.Errorf("reminder: threshold %s: negative value", t.ID())
		}
		if _, err := t.Unit.duration(); err != nil {
			return nil, fmt.Errorf("reminder: %w", err)
		}
		if strings.TrimSpace(t.Title) == "" {
			return nil, fmt.Errorf("reminder: threshold %s: empty title", t.ID())
		}
		id := t.ID()
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("reminder: duplicate threshold id %q", id)
		}
		seen[id] = struct{}{}
		items = append(items, t)
	}
	return &Registry{items: items}, nil
}

// Thresholds returns a copy in registry order.
func (r *Registry) Thresholds() []Threshold {
	out := make([]Threshold, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Registry) IDs() []string {
	out := make([]string, len(r.items))
	for i, t := range r.items {
		out[i] = t.ID()
	}
	return out
}
