package domain

import "time"

// PrefixSize is one flattened row of a usage tree.
type PrefixSize struct {
	Prefix    string `json:"prefix" db:"prefix"`
	Name      string `json:"name" db:"-"`
	Depth     int    `json:"depth" db:"depth"`
	SizeBytes uint64 `json:"size_bytes" db:"size_bytes"`
}

// UsageSnapshot is the flattened, cacheable outcome of a run.
type UsageSnapshot struct {
	Bucket     string       `json:"bucket"`
	RunDate    string       `json:"run_date"`
	TotalBytes uint64       `json:"total_bytes"`
	TotalFiles int64        `json:"total_files"`
	Prefixes   []PrefixSize `json:"prefixes"`
	CreatedAt  time.Time    `json:"created_at"`
}

// UsageRun tracks a single execution of the report for a bucket.
type UsageRun struct {
	ID           int64      `json:"id" db:"id"`
	Bucket       string     `json:"bucket" db:"bucket"`
	RunDate      time.Time  `json:"run_date" db:"run_date"`
	Status       RunStatus  `json:"status" db:"status"`
	TotalBytes   int64      `json:"total_bytes" db:"total_bytes"`
	TotalFiles   int64      `json:"total_files" db:"total_files"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
}

// PrefixHistoryPoint is the size of one prefix as recorded by one run.
type PrefixHistoryPoint struct {
	Prefix    string    `json:"prefix" db:"prefix"`
	RunDate   time.Time `json:"run_date" db:"run_date"`
	SizeBytes int64     `json:"size_bytes" db:"size_bytes"`
}

// Flatten lists every node below root in pre-order, skipping root itself.
// Depth 0 is a direct child of root.
func Flatten(root *StorageNode) []PrefixSize {
	if root == nil {
		return nil
	}
	rows := make([]PrefixSize, 0, root.Count())
	_ = root.Walk(func(key string, node *StorageNode, depth int) error {
		if depth == 0 {
			return nil
		}
		rows = append(rows, PrefixSize{
			Prefix:    key,
			Name:      node.Name,
			Depth:     depth - 1,
			SizeBytes: node.SizeBytes,
		})
		return nil
	})
	return rows
}
