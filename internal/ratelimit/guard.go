package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Window is the rolling period MaxPerDay counts over.
const Window = 24 * time.Hour

// Limits bound how often one platform may be posted to.
type Limits struct {
	MaxPerDay int
	MinGap    time.Duration
}

// DefaultLimits are the per-platform defaults.
func DefaultLimits() map[string]Limits {
	return map[string]Limits{
		"facebook":   {MaxPerDay: 10, MinGap: 15 * time.Minute},
		"craigslist": {MaxPerDay: 20, MinGap: 30 * time.Minute},
	}
}

type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
	DailyCount int
}

// History stores post times per platform.
type History interface {
	Since(ctx context.Context, platform string, since time.Time) ([]time.Time, error)
	Record(ctx context.Context, platform string, at time.Time) error
}

// PostingGuard enforces Limits against a History.
type PostingGuard struct {
	limits  map[string]Limits
	history History
	now     func() time.Time
}

func NewPostingGuard(limits map[string]Limits, history History) *PostingGuard {
	return &PostingGuard{
		limits:  limits,
		history: history,
		now:     time.Now,
	}
}

// Allow reports whether platform may be posted to now. Platforms without
// limits are always allowed.
func (g *PostingGuard) Allow(ctx context.Context, platform string) (Decision, error) {
	limits, ok := g.limits[platform]
	if !ok {
		return Decision{Allowed: true, Reason: "no limits configured"}, nil
	}

	now := g.now()
	times, err := g.history.Since(ctx, platform, now.Add(-Window))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read posting history: %w", err)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].After(times[j]) })

	count := len(times)
	if limits.MaxPerDay > 0 && count >= limits.MaxPerDay {
		oldest := times[count-1]
		wait := max(0, oldest.Add(Window).Sub(now))
		return Decision{
			Allowed:    false,
			RetryAfter: wait,
			DailyCount: count,
			Reason:     fmt.Sprintf("daily limit reached (%d/%d), next slot in %d min", count, limits.MaxPerDay, minutes(wait)),
		}, nil
	}

	if count > 0 && limits.MinGap > 0 {
		elapsed := now.Sub(times[0])
		if elapsed < limits.MinGap {
			wait := limits.MinGap - elapsed
			return Decision{
				Allowed:    false,
				RetryAfter: wait,
				DailyCount: count,
				Reason:     fmt.Sprintf("too soon since last post, wait %d min (min gap %d min)", minutes(wait), minutes(limits.MinGap)),
			}, nil
		}
	}

	return Decision{Allowed: true, Reason: "ok", DailyCount: count}, nil
}

// Record notes a post made now.
func (g *PostingGuard) Record(ctx context.Context, platform string) error {
	if err := g.history.Record(ctx, platform, g.now()); err != nil {
		return fmt.Errorf("failed to record post: %w", err)
	}
	return nil
}

func minutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}

// MemoryHistory keeps post times in process.
type MemoryHistory struct {
	mu    sync.Mutex
	times map[string][]time.Time
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{times: make(map[string][]time.Time)}
}

func (h *MemoryHistory) Since(_ context.Context, platform string, since time.Time) ([]time.Time, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.times[platform][:0]
	for _, t := range h.times[platform] {
		if t.After(since) {
			kept = append(kept, t)
		}
	}
	h.times[platform] = kept

	out := make([]time.Time, len(kept))
	copy(out, kept)
	return out, nil
}

func (h *MemoryHistory) Record(_ context.Context, platform string, at time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.times[platform] = append(h.times[platform], at)
	return nil
}
