package thoughts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PageSize is the fixed number of records returned by every list operation.
const PageSize = 5

const (
	maxContentLength  = 20000
	sortingDateLayout = "January 2006"
)

var (
	// ErrInvalidContent indicates that thought content is empty or exceeds storage bounds.
	ErrInvalidContent = errors.New("thoughts: invalid content")
	// ErrInvalidCreatorID indicates that a creator identifier is not positive.
	ErrInvalidCreatorID = errors.New("thoughts: invalid creator id")
	// ErrInvalidThoughtID indicates that a thought identifier is not positive.
	ErrInvalidThoughtID = errors.New("thoughts: invalid thought id")
	// ErrInvalidPageIndex indicates a negative page index.
	ErrInvalidPageIndex = errors.New("thoughts: invalid page index")
	// ErrThoughtNotFound indicates that no thought matched the id and creator scope.
	ErrThoughtNotFound = errors.New("thoughts: thought not found")
)

// Content represents validated markdown content for a thought.
type Content string

// NewContent validates raw input and returns a Content.
func NewContent(rawInput string) (Content, error) {
	if strings.TrimSpace(rawInput) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidContent)
	}
	if len(rawInput) > maxContentLength {
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrInvalidContent, maxContentLength)
	}
	return Content(rawInput), nil
}

// String returns the underlying markdown text.
func (c Content) String() string {
	return string(c)
}

// CreatorID represents a validated owner identifier.
type CreatorID int64

// NewCreatorID validates the value and returns a CreatorID.
func NewCreatorID(value int64) (CreatorID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCreatorID, value)
	}
	return CreatorID(value), nil
}

// Int64 exposes the raw identifier value.
func (id CreatorID) Int64() int64 {
	return int64(id)
}

// ThoughtID represents a validated thought identifier.
type ThoughtID int64

// NewThoughtID validates the value and returns a ThoughtID.
func NewThoughtID(value int64) (ThoughtID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidThoughtID, value)
	}
	return ThoughtID(value), nil
}

// Int64 exposes the raw identifier value.
func (id ThoughtID) Int64() int64 {
	return int64(id)
}

// SortingDateAt derives the coarse month-and-year bucket for the given instant.
// The bucket tracks the most recent write, not the creation time.
func SortingDateAt(at time.Time) string {
	return at.Format(sortingDateLayout)
}

// Thought models a persisted markdown entry owned by a single creator.
type Thought struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CreatorID   int64     `gorm:"column:creator_id;not null;index:idx_thoughts_creator_created,priority:1;index:idx_thoughts_creator_updated,priority:1"`
	Content     string    `gorm:"column:content;type:text;not null"`
	SortingDate string    `gorm:"column:sorting_date;size:32;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index:idx_thoughts_creator_created,priority:2"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;index:idx_thoughts_creator_updated,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Thought) TableName() string {
	return "thoughts"
}
