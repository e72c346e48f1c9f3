package thoughts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a dotted operation code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "thoughts.service.new"
	opCreate           = "thoughts.create"
	opUpdate           = "thoughts.update"
	opDelete           = "thoughts.delete"
	opDeleteAll        = "thoughts.delete_all"
	opGet              = "thoughts.get"
	opList             = "thoughts.list"
	opListFiltered     = "thoughts.list_filtered"
	opCount            = "thoughts.count"
	opCountFiltered    = "thoughts.count_filtered"
	opListSortingDates = "thoughts.list_sorting_dates"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the thoughts repository.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service implements creator-scoped storage and retrieval of thoughts.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the repository after validating its dependencies.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// CreateThought persists a new entry owned by the creator. Both timestamps and
// the sorting bucket are taken from the current clock reading.
func (s *Service) CreateThought(ctx context.Context, creatorID CreatorID, content Content) (Thought, error) {
	now := s.clock().UTC()
	thought := Thought{
		CreatorID:   creatorID.Int64(),
		Content:     content.String(),
		SortingDate: SortingDateAt(now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&thought).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.Int64("creator_id", creatorID.Int64()))
		return Thought{}, newServiceError(opCreate, "insert_failed", err)
	}
	return thought, nil
}

// UpdateThought replaces the content of an existing entry and refreshes the
// sorting bucket and updated timestamp. A missing row, including a row owned
// by a different creator, is reported as ErrThoughtNotFound.
func (s *Service) UpdateThought(ctx context.Context, creatorID CreatorID, id ThoughtID, content Content) error {
	now := s.clock().UTC()
	result := s.db.WithContext(ctx).
		Model(&Thought{}).
		Where("id = ? AND creator_id = ?", id.Int64(), creatorID.Int64()).
		Updates(map[string]interface{}{
			"content":      content.String(),
			"sorting_date": SortingDateAt(now),
			"updated_at":   now,
		})
	if result.Error != nil {
		s.logError(opUpdate, "update_failed", result.Error,
			zap.Int64("creator_id", creatorID.Int64()),
			zap.Int64("thought_id", id.Int64()))
		return newServiceError(opUpdate, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opUpdate, "thought_not_found", ErrThoughtNotFound)
	}
	return nil
}

// DeleteThought removes an entry scoped to the creator, reporting
// ErrThoughtNotFound when nothing matched.
func (s *Service) DeleteThought(ctx context.Context, creatorID CreatorID, id ThoughtID) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND creator_id = ?", id.Int64(), creatorID.Int64()).
		Delete(&Thought{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error,
			zap.Int64("creator_id", creatorID.Int64()),
			zap.Int64("thought_id", id.Int64()))
		return newServiceError(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDelete, "thought_not_found", ErrThoughtNotFound)
	}
	return nil
}

// DeleteAllThoughts removes every entry owned by the creator and returns the
// number of rows removed.
func (s *Service) DeleteAllThoughts(ctx context.Context, creatorID CreatorID) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("creator_id = ?", creatorID.Int64()).
		Delete(&Thought{})
	if result.Error != nil {
		s.logError(opDeleteAll, "delete_failed", result.Error, zap.Int64("creator_id", creatorID.Int64()))
		return 0, newServiceError(opDeleteAll, "delete_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// GetThought loads a single entry scoped to the creator.
func (s *Service) GetThought(ctx context.Context, creatorID CreatorID, id ThoughtID) (Thought, error) {
	var thought Thought
	err := s.db.WithContext(ctx).
		Where("id = ? AND creator_id = ?", id.Int64(), creatorID.Int64()).
		Take(&thought).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Thought{}, newServiceError(opGet, "thought_not_found", ErrThoughtNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err,
			zap.Int64("creator_id", creatorID.Int64()),
			zap.Int64("thought_id", id.Int64()))
		return Thought{}, newServiceError(opGet, "query_failed", err)
	}
	return thought, nil
}

// ListThoughts returns one page of entries ordered by creation time, newest
// first. Page indexes start at zero.
func (s *Service) ListThoughts(ctx context.Context, creatorID CreatorID, pageIndex int) ([]Thought, error) {
	if pageIndex < 0 {
		return nil, newServiceError(opList, "invalid_page_index", ErrInvalidPageIndex)
	}

	var page []Thought
	err := s.db.WithContext(ctx).
		Where("creator_id = ?", creatorID.Int64()).
		Order("created_at DESC").
		Limit(PageSize).
		Offset(pageIndex * PageSize).
		Find(&page).Error
	if err != nil {
		s.logError(opList, "query_failed", err, zap.Int64("creator_id", creatorID.Int64()))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return page, nil
}

// ListFilteredThoughts returns one page of entries matching the text and date
// filters, ordered by last write, newest first. An empty text imposes no
// filter. A nil dateFilter imposes no filter; an empty string is a distinct
// filter matching entries whose sorting bucket is empty.
func (s *Service) ListFilteredThoughts(ctx context.Context, creatorID CreatorID, pageIndex int, text string, dateFilter *string) ([]Thought, error) {
	if pageIndex < 0 {
		return nil, newServiceError(opListFiltered, "invalid_page_index", ErrInvalidPageIndex)
	}

	var page []Thought
	err := applyFilters(s.db.WithContext(ctx).Where("creator_id = ?", creatorID.Int64()), text, dateFilter).
		Order("updated_at DESC").
		Limit(PageSize).
		Offset(pageIndex * PageSize).
		Find(&page).Error
	if err != nil {
		s.logError(opListFiltered, "query_failed", err, zap.Int64("creator_id", creatorID.Int64()))
		return nil, newServiceError(opListFiltered, "query_failed", err)
	}
	return page, nil
}

// CountThoughts returns the total number of entries owned by the creator.
func (s *Service) CountThoughts(ctx context.Context, creatorID CreatorID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Thought{}).
		Where("creator_id = ?", creatorID.Int64()).
		Count(&count).Error
	if err != nil {
		s.logError(opCount, "query_failed", err, zap.Int64("creator_id", creatorID.Int64()))
		return 0, newServiceError(opCount, "query_failed", err)
	}
	return count, nil
}

// CountFilteredThoughts returns the number of entries matching the same
// filters as ListFilteredThoughts.
func (s *Service) CountFilteredThoughts(ctx context.Context, creatorID CreatorID, text string, dateFilter *string) (int64, error) {
	var count int64
	err := applyFilters(s.db.WithContext(ctx).Model(&Thought{}).Where("creator_id = ?", creatorID.Int64()), text, dateFilter).
		Count(&count).Error
	if err != nil {
		s.logError(opCountFiltered, "query_failed", err, zap.Int64("creator_id", creatorID.Int64()))
		return 0, newServiceError(opCountFiltered, "query_failed", err)
	}
	return count, nil
}

// ListSortingDates returns the distinct month-and-year buckets present for the
// creator, most recently written first.
func (s *Service) ListSortingDates(ctx context.Context, creatorID CreatorID) ([]string, error) {
	var dates []string
	err := s.db.WithContext(ctx).
		Model(&Thought{}).
		Where("creator_id = ?", creatorID.Int64()).
		Group("sorting_date").
		Order("MAX(updated_at) DESC").
		Pluck("sorting_date", &dates).Error
	if err != nil {
		s.logError(opListSortingDates, "query_failed", err, zap.Int64("creator_id", creatorID.Int64()))
		return nil, newServiceError(opListSortingDates, "query_failed", err)
	}
	return dates, nil
}

func applyFilters(tx *gorm.DB, text string, dateFilter *string) *gorm.DB {
	if text != "" {
		tx = tx.Where("content LIKE ? ESCAPE '\\'", "%"+escapeLikePattern(text)+"%")
	}
	if dateFilter != nil {
		tx = tx.Where("sorting_date = ?", *dateFilter)
	}
	return tx
}

// escapeLikePattern neutralizes LIKE metacharacters so filter text is matched
// as a literal substring.
func escapeLikePattern(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("thoughts service error", attrs...)
}
