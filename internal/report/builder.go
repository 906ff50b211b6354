// Package report wraps an aggregated usage tree into the dated report
// envelope and hands finished reports to display sinks.
package report

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
)

// Aggregator is the part of aggregator.Aggregator the builder needs.
type Aggregator interface {
	Totals(ctx context.Context, bucket, prefix string) (domain.BucketTotals, error)
	Aggregate(ctx context.Context, bucket, prefix string, depth int) (*domain.StorageNode, error)
}

// Report is one finished run: the envelope tree plus the whole-bucket totals.
type Report struct {
	Run    domain.Run
	Root   *domain.StorageNode
	Totals domain.BucketTotals
}

// Bucket returns the bucket node that holds the per-prefix tree.
func (r *Report) Bucket() *domain.StorageNode {
	if r == nil || r.Root == nil {
		return nil
	}
	node, _ := r.Root.Child(r.Run.Bucket)
	return node
}

// Builder produces Reports.
type Builder struct {
	agg Aggregator
}

func NewBuilder(agg Aggregator) *Builder {
	return &Builder{agg: agg}
}

// DateLabel is the name of the top envelope node.
func DateLabel(run domain.Run) string {
	return fmt.Sprintf("Date : %s, Total Storage Size ", run.DateLabel())
}

// BucketLabel is the name of the bucket envelope node.
func BucketLabel(bucket string, files int64) string {
	return fmt.Sprintf("Bucket Name : %s , Total Files : %d , Total Bucket Size", bucket, files)
}

// Build totals the whole bucket with one unfiltered listing, then nests the
// children of the aggregated start prefix below a date node and a bucket
// node. Both envelope nodes carry the bucket total, not the sum of their
// children.
func (b *Builder) Build(ctx context.Context, run domain.Run) (*Report, error) {
	totals, err := b.agg.Totals(ctx, run.Bucket, "")
	if err != nil {
		return nil, fmt.Errorf("failed to total bucket %s: %w", run.Bucket, err)
	}

	log.Info().
		Str("bucket", run.Bucket).
		Str("date", run.DateLabel()).
		Int64("total_files", totals.ObjectCount).
		Str("total_gb", fmt.Sprintf("%.2f", domain.GB(totals.SizeBytes))).
		Msg("bucket totals computed")

	tree, err := b.agg.Aggregate(ctx, run.Bucket, run.Prefix, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate bucket %s: %w", run.Bucket, err)
	}

	bucketNode := domain.NewStorageNode(BucketLabel(run.Bucket, totals.ObjectCount), totals.SizeBytes)
	bucketNode.AdoptChildren(tree)

	root := domain.NewStorageNode(DateLabel(run), totals.SizeBytes)
	root.SetChild(run.Bucket, bucketNode)

	return &Report{Run: run, Root: root, Totals: totals}, nil
}
