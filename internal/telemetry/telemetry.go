// Package telemetry derives data usage rollups from raw device samples.
package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"signage-control-backend/internal/model"
)

const dateLayout = "2006-01-02"

// DailyUsage is the traffic of one calendar date.
type DailyUsage struct {
	Date       string `json:"date"`
	Downloaded int64  `json:"downloaded"`
	Uploaded   int64  `json:"uploaded"`
}

// DataUsage is the response of the data-usage endpoint.
type DataUsage struct {
	TotalDownloaded int64        `json:"totalDownloaded"`
	TotalUploaded   int64        `json:"totalUploaded"`
	Total           int64        `json:"total"`
	RecordCount     int          `json:"recordCount"`
	DailyBreakdown  []DailyUsage `json:"dailyBreakdown"`
}

// Aggregate sums records and buckets them by calendar date in loc. The
// breakdown is ordered by date and is never nil.
func Aggregate(records []model.DataUsageRecord, loc *time.Location) DataUsage {
	if loc == nil {
		loc = time.UTC
	}
	out := DataUsage{DailyBreakdown: []DailyUsage{}}
	byDate := make(map[string]*DailyUsage)

	for _, r := range records {
		out.TotalDownloaded += r.Downloaded
		out.TotalUploaded += r.Uploaded
		out.RecordCount++

		date := r.RecordedAt.In(loc).Format(dateLayout)
		bucket, ok := byDate[date]
		if !ok {
			bucket = &DailyUsage{Date: date}
			byDate[date] = bucket
		}
		bucket.Downloaded += r.Downloaded
		bucket.Uploaded += r.Uploaded
	}
	out.Total = out.TotalDownloaded + out.TotalUploaded

	for _, bucket := range byDate {
		out.DailyBreakdown = append(out.DailyBreakdown, *bucket)
	}
	// ISO dates sort lexically.
	sort.Slice(out.DailyBreakdown, func(i, j int) bool {
		return out.DailyBreakdown[i].Date < out.DailyBreakdown[j].Date
	})
	return out
}

// Named periods accepted by PeriodStart.
const (
	PeriodToday = "today"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
	PeriodAll   = "all"
)

// PeriodStart resolves a named period into an absolute lower bound. "all"
// returns nil (no bound). "week" covers today and the six days before it.
func PeriodStart(period string, now time.Time, loc *time.Location) (*time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var start time.Time
	switch strings.ToLower(strings.TrimSpace(period)) {
	case PeriodToday:
		start = midnight
	case PeriodWeek:
		start = midnight.AddDate(0, 0, -6)
	case PeriodMonth:
		start = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	case PeriodYear:
		start = time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, loc)
	case PeriodAll, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown period %q", period)
	}
	return &start, nil
}
