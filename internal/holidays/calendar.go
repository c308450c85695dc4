// Package holidays supplies the holiday facts used during validation. Facts come
// from a public API when reachable and from an embedded seed otherwise.
package holidays

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"salonbook/backend/internal/domain"
)

var ErrNoHolidayData = errors.New("no holiday data available")

// Fetcher is the network source of holiday facts. *Client implements it.
type Fetcher interface {
	PublicHolidays(ctx context.Context, year int, country string) ([]domain.Holiday, error)
}

type Calendar struct {
	fetcher Fetcher
	country string
	logger  *slog.Logger
	seed    []domain.Holiday

	mu      sync.Mutex
	fetched map[int][]domain.Holiday
	current atomic.Pointer[domain.HolidaySet]
}

type Option func(*calendarOptions)

type calendarOptions struct {
	seed   []byte
	logger *slog.Logger
}

// WithSeed replaces the embedded seed document.
func WithSeed(data []byte) Option {
	return func(o *calendarOptions) { o.seed = data }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *calendarOptions) { o.logger = l }
}

// New builds a calendar holding the seed facts. It fails with ErrNoHolidayData
// when the seed cannot be read, so a Calendar never serves an empty set by accident.
// fetcher may be nil, in which case Refresh only reapplies the seed.
func New(fetcher Fetcher, country string, opts ...Option) (*Calendar, error) {
	o := calendarOptions{seed: defaultSeed, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	seed, err := ParseSeed(o.seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoHolidayData, err)
	}

	c := &Calendar{
		fetcher: fetcher,
		country: country,
		logger:  o.logger.With("component", "holidays"),
		seed:    seed,
		fetched: map[int][]domain.Holiday{},
	}
	c.publish()
	return c, nil
}

// Set returns the current immutable holiday set.
func (c *Calendar) Set() domain.HolidaySet {
	return *c.current.Load()
}

type RefreshReport struct {
	Fetched map[int]int
	Failed  map[int]error
	Total   int
}

// FellBack reports whether at least one year is served from seed or earlier data.
func (r RefreshReport) FellBack() bool { return len(r.Failed) > 0 }

// Refresh fetches the given years concurrently and swaps in a new set built from
// the seed plus every successfully fetched year. A failed year keeps whatever was
// fetched for it previously.
func (c *Calendar) Refresh(ctx context.Context, years ...int) RefreshReport {
	report := RefreshReport{Fetched: map[int]int{}, Failed: map[int]error{}}
	if c.fetcher == nil {
		for _, y := range years {
			report.Failed[y] = errors.New("no holiday fetcher configured")
		}
		report.Total = c.Set().Len()
		return report
	}

	var (
		mu      sync.Mutex
		results = map[int][]domain.Holiday{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, year := range dedupe(years) {
		year := year
		g.Go(func() error {
			hs, err := c.fetcher.PublicHolidays(gctx, year, c.country)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[year] = err
				return nil
			}
			results[year] = hs
			report.Fetched[year] = len(hs)
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	for y, hs := range results {
		c.fetched[y] = hs
	}
	c.mu.Unlock()
	c.publish()

	report.Total = c.Set().Len()
	for y, err := range report.Failed {
		c.logger.Warn("holiday fetch failed, using fallback facts", "year", y, "country", c.country, "err", err)
	}
	c.logger.Info("holidays refreshed", "fetched_years", len(report.Fetched), "failed_years", len(report.Failed), "total", report.Total)
	return report
}

// publish rebuilds the set from seed and fetched facts. Fetched facts win on the same date.
func (c *Calendar) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := append([]domain.Holiday(nil), c.seed...)
	years := make([]int, 0, len(c.fetched))
	for y := range c.fetched {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, y := range years {
		all = append(all, c.fetched[y]...)
	}
	set := domain.NewHolidaySet(all)
	c.current.Store(&set)
}

func dedupe(years []int) []int {
	seen := make(map[int]struct{}, len(years))
	out := make([]int, 0, len(years))
	for _, y := range years {
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		out = append(out, y)
	}
	return out
}
