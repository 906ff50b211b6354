package domain

import "time"

const (
	runDateLabelLayout = "02-01-2006"
	isoDateLayout      = "2006-01-02"
)

// Run is the immutable context of one report run. Stages receive it by value.
type Run struct {
	Bucket       string
	Prefix       string
	Date         time.Time
	Segment      string
	ReportBucket string
	ReportKey    string
}

// DateLabel is the day-first date shown in the report envelope.
func (r Run) DateLabel() string {
	return r.Date.Format(runDateLabelLayout)
}

// ISODate is the date used in mail subjects, file names and history rows.
func (r Run) ISODate() string {
	return r.Date.Format(isoDateLayout)
}

// BucketTotals is the result of a full, unfiltered listing of a bucket.
type BucketTotals struct {
	SizeBytes   uint64 `json:"size_bytes"`
	ObjectCount int64  `json:"object_count"`
}
