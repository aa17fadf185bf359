package course

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/masomo-admin/core"
)

// SearchCache stores typeahead results for a while.
type SearchCache interface {
	GetStudents(ctx context.Context, key string) ([]Student, bool)
	SetStudents(ctx context.Context, key string, students []Student, ttl time.Duration)
}

type TypeaheadOptions struct {
	Debounce time.Duration // a call superseded within this window returns no results
	Cache    SearchCache   // optional
	CacheTTL time.Duration
}

// Typeahead issues on-demand student lookups for one composition session.
// Lookup failures never reach the caller: they are logged and yield no results.
type Typeahead struct {
	searcher Searcher
	logger   core.Logger
	opts     TypeaheadOptions

	mu  sync.Mutex
	gen uint64
}

func NewTypeahead(searcher Searcher, logger core.Logger, opts TypeaheadOptions) *Typeahead {
	return &Typeahead{
		searcher: searcher,
		logger:   logger,
		opts:     opts,
	}
}

// Search returns the students of the course whose name matches `text`.
func (ta *Typeahead) Search(ctx context.Context, text string, courseID int) []Student {
	text = core.CleanString(text)
	if text == "" {
		return nil
	}

	gen := ta.next()
	if ta.opts.Debounce > 0 {
		timer := time.NewTimer(ta.opts.Debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if ta.superseded(gen) {
			return nil
		}
	}

	key := searchCacheKey(courseID, text)
	if ta.opts.Cache != nil {
		if students, ok := ta.opts.Cache.GetStudents(ctx, key); ok {
			return students
		}
	}

	students, err := ta.searcher.SearchStudents(ctx, text, courseID)
	if err != nil {
		err = core.NewNetworkError("searching students", err)
		ta.logger.Warn(fmt.Sprintf("typeahead search %q failed: %v", text, err), err)
		return nil
	}
	if ta.opts.Cache != nil {
		ta.opts.Cache.SetStudents(ctx, key, students, ta.opts.CacheTTL)
	}
	return students
}

func (ta *Typeahead) next() uint64 {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	ta.gen++
	return ta.gen
}

func (ta *Typeahead) superseded(gen uint64) bool {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	return gen != ta.gen
}

func searchCacheKey(courseID int, text string) string {
	return fmt.Sprintf("typeahead:%d:%s", courseID, strings.ToLower(text))
}
