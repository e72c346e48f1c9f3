package feed

import (
	"context"
	"errors"

	"github.com/quietink/thoughts/backend/internal/notify"
	"github.com/quietink/thoughts/backend/internal/thoughts"
	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("feed: store is required")
	noOpLogger      = zap.NewNop()
)

// Store is the slice of the thoughts repository a list session reads from.
type Store interface {
	ListThoughts(ctx context.Context, creatorID thoughts.CreatorID, pageIndex int) ([]thoughts.Thought, error)
	ListFilteredThoughts(ctx context.Context, creatorID thoughts.CreatorID, pageIndex int, text string, dateFilter *string) ([]thoughts.Thought, error)
	CountThoughts(ctx context.Context, creatorID thoughts.CreatorID) (int64, error)
	CountFilteredThoughts(ctx context.Context, creatorID thoughts.CreatorID, text string, dateFilter *string) (int64, error)
}

// SessionConfig describes the dependencies of a list session.
type SessionConfig struct {
	Store     Store
	CreatorID thoughts.CreatorID
	Logger    *zap.Logger
}

// Session holds the incremental-list state for one list view: the loaded
// prefix, the next page index, and the known total. A session is owned by a
// single caller and is not safe for concurrent use.
type Session struct {
	store       Store
	creatorID   thoughts.CreatorID
	logger      *zap.Logger
	items       []thoughts.Thought
	pageIndex   int
	overall     int64
	loadingMore bool
	text        string
	dateFilter  *string
}

// NewSession constructs an empty session. Call Refresh to load the first page.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Session{
		store:     cfg.Store,
		creatorID: cfg.CreatorID,
		logger:    logger,
	}, nil
}

// SetFilter replaces the text and date filters. The caller refreshes
// afterwards; filters take effect on the next Refresh.
func (s *Session) SetFilter(text string, dateFilter *string) {
	s.text = text
	s.dateFilter = dateFilter
}

// Refresh re-runs the initial fetch sequence: refetch the total, fetch page
// zero, replace the loaded prefix, and reset the page index to one. When the
// context is cancelled mid-fetch the session state is left untouched.
func (s *Session) Refresh(ctx context.Context) error {
	var (
		count int64
		page  []thoughts.Thought
		err   error
	)
	if s.filtered() {
		count, err = s.store.CountFilteredThoughts(ctx, s.creatorID, s.text, s.dateFilter)
		if err == nil {
			page, err = s.store.ListFilteredThoughts(ctx, s.creatorID, 0, s.text, s.dateFilter)
		}
	} else {
		count, err = s.store.CountThoughts(ctx, s.creatorID)
		if err == nil {
			page, err = s.store.ListThoughts(ctx, s.creatorID, 0)
		}
	}
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.items = page
	s.pageIndex = 1
	s.overall = count
	return nil
}

// LoadMore fetches the next page and appends it to the loaded prefix. It
// reports whether a page was fetched; when the pagination policy says the
// list is exhausted it returns false without touching the store. The
// loading-more flag is true for exactly the duration of a fetch, including on
// failure.
func (s *Session) LoadMore(ctx context.Context) (bool, error) {
	if !ShouldFetchNext(s.overall, s.pageIndex) {
		return false, nil
	}

	s.loadingMore = true
	defer func() { s.loadingMore = false }()

	var (
		page []thoughts.Thought
		err  error
	)
	if s.filtered() {
		page, err = s.store.ListFilteredThoughts(ctx, s.creatorID, s.pageIndex, s.text, s.dateFilter)
	} else {
		page, err = s.store.ListThoughts(ctx, s.creatorID, s.pageIndex)
	}
	if err != nil {
		return false, err
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	s.items = append(s.items, page...)
	s.pageIndex++
	return true, nil
}

// Follow consumes mutation events and re-runs the initial fetch sequence for
// each one. It blocks until the context is done or the event stream closes.
// Refresh failures are logged and the next event retried, matching the
// eventual-consistency contract of the notification channel.
func (s *Session) Follow(ctx context.Context, events <-chan notify.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Kind == notify.MutationNone {
				continue
			}
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("feed refresh failed",
					zap.String("mutation", event.Kind.String()),
					zap.Error(err))
			}
		}
	}
}

// Items returns a copy of the loaded prefix in fetch order.
func (s *Session) Items() []thoughts.Thought {
	out := make([]thoughts.Thought, len(s.items))
	copy(out, s.items)
	return out
}

// PageIndex returns the index of the next page to fetch.
func (s *Session) PageIndex() int {
	return s.pageIndex
}

// OverallCount returns the total matching the current filters as of the last
// Refresh.
func (s *Session) OverallCount() int64 {
	return s.overall
}

// LoadingMore reports whether a next-page fetch is in flight.
func (s *Session) LoadingMore() bool {
	return s.loadingMore
}

// HasMore reports whether the policy allows fetching another page.
func (s *Session) HasMore() bool {
	return ShouldFetchNext(s.overall, s.pageIndex)
}

// ShowEndOfList reports whether an "all content loaded" indicator should be
// rendered: the list is exhausted and long enough to have scrolled.
func (s *Session) ShowEndOfList() bool {
	return !s.HasMore() && !IsShortList(len(s.items))
}

// ShowScrollAffordance reports whether jump-to-end controls are warranted.
func (s *Session) ShowScrollAffordance() bool {
	return !IsShortList(len(s.items))
}

func (s *Session) filtered() bool {
	return s.text != "" || s.dateFilter != nil
}
