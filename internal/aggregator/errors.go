package aggregator

import "fmt"

const (
	OpListLevel   = "list-level"
	OpListObjects = "list-objects"
)

// ListingError reports the prefix whose listing failed. Aggregation of that
// subtree, and of the whole tree, is abandoned.
type ListingError struct {
	Bucket string
	Prefix string
	Op     string
	Err    error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("%s failed for prefix %q in bucket %q: %v", e.Op, e.Prefix, e.Bucket, e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}
