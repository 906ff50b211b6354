// Package aggregator computes per-prefix storage usage trees.
//
// The default strategy walks the namespace one delimiter level at a time and
// totals every child prefix with a separate full listing, so a bucket is
// re-listed roughly once per level of depth: O(objects x average depth).
// The single-pass strategy lists the start prefix once and aggregates
// bottom-up in memory; both expose the same node sizes for a bucket that is
// not being written to during the run.
package aggregator

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage"
)

// Strategy selects how prefix sizes are computed.
type Strategy string

const (
	StrategyRelist     Strategy = "relist"
	StrategySinglePass Strategy = "single-pass"
)

// DefaultMaxDepth caps recursion when Options.MaxDepth is unset.
const DefaultMaxDepth = 64

// Options configures which prefixes are expanded.
type Options struct {
	// Delimiter separates folders; defaults to "/".
	Delimiter string
	// SkipPrefix is excluded from the tree, together with everything below
	// it, when a child prefix equals it exactly. Empty disables skipping.
	SkipPrefix string
	// DateMarker stops expansion: a child prefix containing it becomes a
	// leaf. Empty never stops.
	DateMarker string
	// MaxDepth bounds recursion; children at this depth are not expanded.
	MaxDepth int
	Strategy Strategy
}

// Aggregator builds StorageNode trees from a storage.Lister.
type Aggregator struct {
	lister storage.Lister
	opts   Options
}

// New creates an Aggregator, filling in option defaults.
func New(lister storage.Lister, opts Options) *Aggregator {
	if opts.Delimiter == "" {
		opts.Delimiter = storage.DefaultDelimiter
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyRelist
	}
	return &Aggregator{lister: lister, opts: opts}
}

// ParseStrategy validates a configured strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case "", StrategyRelist:
		return StrategyRelist, nil
	case StrategySinglePass:
		return s, nil
	default:
		return "", fmt.Errorf("unknown aggregation strategy %q", name)
	}
}

// Aggregate returns the usage node for prefix. The returned node's own
// SizeBytes counts only objects directly under prefix; every descendant node
// carries the full total of its subtree.
func (a *Aggregator) Aggregate(ctx context.Context, bucket, prefix string, depth int) (*domain.StorageNode, error) {
	if a.opts.Strategy == StrategySinglePass {
		return a.aggregateSinglePass(ctx, bucket, prefix, depth)
	}
	return a.aggregate(ctx, bucket, prefix, depth)
}

// Totals sums the size and count of every object under prefix with one full
// listing.
func (a *Aggregator) Totals(ctx context.Context, bucket, prefix string) (domain.BucketTotals, error) {
	var totals domain.BucketTotals
	err := a.lister.ListObjects(ctx, bucket, prefix, func(obj storage.ObjectInfo) error {
		totals.SizeBytes += obj.Size
		totals.ObjectCount++
		return nil
	})
	if err != nil {
		return domain.BucketTotals{}, &ListingError{Bucket: bucket, Prefix: prefix, Op: OpListObjects, Err: err}
	}
	return totals, nil
}

func (a *Aggregator) aggregate(ctx context.Context, bucket, prefix string, depth int) (*domain.StorageNode, error) {
	node := domain.NewStorageNode(domain.NodeName(prefix, a.opts.Delimiter), 0)

	var (
		ownSize  uint64
		children []string
	)
	err := a.lister.ListLevel(ctx, bucket, prefix, a.opts.Delimiter, func(page storage.LevelPage) error {
		for _, obj := range page.Objects {
			ownSize += obj.Size
		}
		children = append(children, page.Prefixes...)
		return nil
	})
	if err != nil {
		return nil, &ListingError{Bucket: bucket, Prefix: prefix, Op: OpListLevel, Err: err}
	}

	for _, child := range children {
		if a.skip(child) {
			log.Debug().Str("prefix", child).Msg("skipping excluded prefix")
			continue
		}

		totals, err := a.Totals(ctx, bucket, child)
		if err != nil {
			return nil, err
		}
		childNode := domain.NewStorageNode(domain.NodeName(child, a.opts.Delimiter), totals.SizeBytes)
		logChild(child, depth, totals.SizeBytes)

		if a.descend(child, depth) {
			sub, err := a.aggregate(ctx, bucket, child, depth+1)
			if err != nil {
				return nil, err
			}
			childNode.AdoptChildren(sub)
		}
		node.SetChild(child, childNode)
	}

	node.SizeBytes = ownSize
	return node, nil
}

func (a *Aggregator) skip(prefix string) bool {
	return a.opts.SkipPrefix != "" && prefix == a.opts.SkipPrefix
}

// descend reports whether a child found at depth should be expanded.
func (a *Aggregator) descend(child string, depth int) bool {
	if a.opts.DateMarker != "" && strings.Contains(child, a.opts.DateMarker) {
		return false
	}
	if depth+1 >= a.opts.MaxDepth {
		log.Warn().
			Str("prefix", child).
			Int("max_depth", a.opts.MaxDepth).
			Msg("max depth reached, not expanding prefix")
		return false
	}
	return true
}

func logChild(prefix string, depth int, sizeBytes uint64) {
	log.Info().
		Str("prefix", prefix).
		Int("depth", depth).
		Uint64("size_bytes", sizeBytes).
		Str("size_gb", fmt.Sprintf("%.2f", domain.GB(sizeBytes))).
		Str("size_human", humanize.IBytes(sizeBytes)).
		Msg(strings.Repeat("   ", depth) + prefix)
}
