package core

import (
	"strconv"
	"time"
)

// SeriesPoint is one bucket on a fixed chart axis.
type SeriesPoint struct {
	Bucket int    `json:"bucket"`
	Label  string `json:"label"`
	Total  Money  `json:"total"`
}

type dated interface {
	Amounted
	RecordDate() Date
}

// DaySeries buckets records by day for every day of a monthly period, in
// day order, keeping empty days. Records outside the period are ignored.
func DaySeries[R dated](p Period, records []R) []SeriesPoint {
	if p.IsYear() {
		return nil
	}
	days := p.DaysIn()
	out := make([]SeriesPoint, days)
	for i := range out {
		out[i] = SeriesPoint{Bucket: i + 1, Label: strconv.Itoa(i + 1)}
	}
	for _, r := range records {
		d := r.RecordDate()
		if !p.Contains(d) {
			continue
		}
		i := d.Day() - 1
		out[i].Total = out[i].Total.Add(r.RecordAmount())
	}
	return out
}

// MonthSeries buckets records by month for all twelve months of year.
func MonthSeries[R dated](year int, records []R) []SeriesPoint {
	out := make([]SeriesPoint, 12)
	for i := range out {
		out[i] = SeriesPoint{Bucket: i + 1, Label: time.Month(i + 1).String()[:3]}
	}
	for _, r := range records {
		d := r.RecordDate()
		if d.Year() != year {
			continue
		}
		i := int(d.Month()) - 1
		out[i].Total = out[i].Total.Add(r.RecordAmount())
	}
	return out
}
