package record

import (
	"sort"
	"time"
)

// Period is the length of a summary bucket.
type Period string

const (
	// PeriodDay buckets records by calendar day.
	PeriodDay Period = "day"
	// PeriodWeek buckets records by ISO week, starting on Monday.
	PeriodWeek Period = "week"
)

// Summary is the sum of counts over the records of one period.
type Summary struct {
	Period Period `json:"period" yaml:"period"`

	// Start is the first day of the period at midnight UTC.
	Start         time.Time       `json:"start" yaml:"start"`
	Images        int             `json:"images" yaml:"images"`
	Counts        DetectionCounts `json:"counts" yaml:"counts"`
	DominantClass string          `json:"dominantClass" yaml:"dominantClass"`
}

// calendarDay is a date with no location, so that timestamps of one day in
// different *time.Location values share a bucket.
type calendarDay struct {
	year  int
	month time.Month
	day   int
}

func dayOf(ts time.Time) calendarDay {
	y, m, d := ts.Date()
	return calendarDay{y, m, d}
}

func (c calendarDay) midnight() time.Time {
	return time.Date(c.year, c.month, c.day, 0, 0, 0, 0, time.UTC)
}

// weekStart returns the Monday of the ISO week holding c.
func (c calendarDay) weekStart() calendarDay {
	t := c.midnight()
	offset := (int(t.Weekday()) + 6) % 7
	return dayOf(t.AddDate(0, 0, -offset))
}

// Summarize groups records by the calendar day they were captured on (the
// processing time when the capture time is unknown), read in the location of
// each timestamp, and sums their counts. Days are returned oldest first.
func Summarize(classes []string, records []*DetectionRecord) []Summary {
	return summarize(classes, records, PeriodDay)
}

// SummarizeWeekly is Summarize with ISO weeks instead of days.
func SummarizeWeekly(classes []string, records []*DetectionRecord) []Summary {
	return summarize(classes, records, PeriodWeek)
}

func summarize(classes []string, records []*DetectionRecord, period Period) []Summary {
	buckets := make(map[calendarDay]*Summary)

	for _, r := range records {
		if r == nil {
			continue
		}
		ts := r.CapturedAt
		if ts.IsZero() {
			ts = r.ProcessedAt
		}
		key := dayOf(ts)
		if period == PeriodWeek {
			key = key.weekStart()
		}

		s, ok := buckets[key]
		if !ok {
			s = &Summary{Period: period, Start: key.midnight(), Counts: NewCounts(classes)}
			buckets[key] = s
		}
		s.Images++
		for c, n := range r.Counts {
			if _, known := s.Counts[c]; known {
				s.Counts[c] += n
			}
		}
	}

	out := make([]Summary, 0, len(buckets))
	for _, s := range buckets {
		s.DominantClass = DominantClass(classes, s.Counts)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })

	return out
}
