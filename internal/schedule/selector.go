package schedule

import (
	"log"
	"time"

	"post_scheduler/internal/models"
)

// Due is the selector's resolved view of the first eligible row.
type Due struct {
	Post        *models.Post
	ScheduledAt time.Time
	ThreadGroup string
	ReplyLink   string
}

// Selector scans rows in store order and returns the first one that is due
// within the symmetric tolerance window. It never mutates anything.
type Selector struct {
	tolerance time.Duration
	loc       *time.Location
	logger    *log.Logger
}

func NewSelector(tolerance time.Duration, loc *time.Location, logger *log.Logger) *Selector {
	if tolerance <= 0 {
		tolerance = 10 * time.Minute
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Selector{tolerance: tolerance, loc: loc, logger: logger}
}

// SelectNext returns the first eligible row in store order, or nil when no
// row is due. First match wins; there is no priority beyond row order, so the
// call is idempotent for an unchanged row set and the same now.
func (s *Selector) SelectNext(rows []*models.Post, now time.Time) *Due {
	for _, row := range rows {
		switch row.EffectiveStatus() {
		case models.StatusPosted, models.StatusPosting:
			continue
		}
		if row.Content == "" {
			continue
		}

		at, err := ParseSchedule(row.DateRaw, row.HourRaw, row.MinuteRaw, s.loc)
		if err != nil {
			s.logger.Printf("selector: skip row %d: %v", row.ID, err)
			continue
		}

		if at.Before(now.Add(-s.tolerance)) {
			// No backfill: overdue rows are only reported, never auto-published.
			if row.EffectiveStatus() != models.StatusFailed {
				s.logger.Printf("selector: row %d missed its window (scheduled %s)", row.ID, at.Format(time.RFC3339))
			}
			continue
		}
		if at.After(now.Add(s.tolerance)) {
			continue
		}

		return &Due{
			Post:        row,
			ScheduledAt: at,
			ThreadGroup: row.ThreadGroup,
			ReplyLink:   row.ReplyLink,
		}
	}

	return nil
}
