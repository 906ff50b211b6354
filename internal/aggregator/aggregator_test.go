package aggregator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage"
)

const bucket = "lake"

// AggregatorTestSuite runs every case against both strategies.
type AggregatorTestSuite struct {
	suite.Suite
	strategy Strategy
	store    *storage.MemoryStorage
}

func TestRelistStrategy(t *testing.T) {
	suite.Run(t, &AggregatorTestSuite{strategy: StrategyRelist})
}

func TestSinglePassStrategy(t *testing.T) {
	suite.Run(t, &AggregatorTestSuite{strategy: StrategySinglePass})
}

func (s *AggregatorTestSuite) SetupTest() {
	// small pages so multi-page listings are exercised
	s.store = storage.NewMemoryStorage(2)
}

func (s *AggregatorTestSuite) newAggregator(opts Options) *Aggregator {
	opts.Strategy = s.strategy
	return New(s.store, opts)
}

func (s *AggregatorTestSuite) seedDeep() {
	objects := map[string]uint64{
		"top.txt":                                10,
		"raw/a.parquet":                          1000,
		"raw/events/part-0":                      2000,
		"raw/events/part-1":                      3000,
		"raw/events/date=2024-01-01/part-0":      400,
		"raw/events/date=2024-01-01/hour=1/p":    500,
		"raw/events/date=2024-01-02/part-0":      600,
		"raw/tmp/scratch":                        70,
		"curated/orders/orders.csv":              80,
		"curated/orders/archive/2023/orders.csv": 90,
		"checkpoints/0001":                       5,
		"checkpoints/offsets/0001":               6,
	}
	for key, size := range objects {
		s.store.AddObject(bucket, key, size)
	}
}

// baseline sums every object under prefix with a plain listing.
func (s *AggregatorTestSuite) baseline(prefix string) uint64 {
	var total uint64
	err := s.store.ListObjects(context.Background(), bucket, prefix, func(obj storage.ObjectInfo) error {
		total += obj.Size
		return nil
	})
	s.Require().NoError(err)
	return total
}

func (s *AggregatorTestSuite) TestConcreteScenario() {
	s.store.AddObject(bucket, "a/1.txt", 100)
	s.store.AddObject(bucket, "a/2024-01-01/x.txt", 200)
	s.store.AddObject(bucket, "b/y.txt", 50)

	root, err := s.newAggregator(Options{DateMarker: "2024"}).Aggregate(context.Background(), bucket, "", 0)
	s.Require().NoError(err)

	s.Equal("", root.Name)
	s.Equal(uint64(0), root.SizeBytes)
	s.Equal([]string{"a/", "b/"}, root.Keys())

	a, ok := root.Child("a/")
	s.Require().True(ok)
	s.Equal("a", a.Name)
	s.Equal(uint64(300), a.SizeBytes, "child nodes carry their full subtree size")
	s.Equal([]string{"a/2024-01-01/"}, a.Keys())

	dated, _ := a.Child("a/2024-01-01/")
	s.Equal("a/2024-01-01", dated.Name)
	s.Equal(uint64(200), dated.SizeBytes)
	s.Zero(dated.Len())

	b, _ := root.Child("b/")
	s.Equal(uint64(50), b.SizeBytes)
	s.Zero(b.Len())
}

func (s *AggregatorTestSuite) TestChildSizesMatchFullListing() {
	s.seedDeep()

	root, err := s.newAggregator(Options{DateMarker: "date="}).Aggregate(context.Background(), bucket, "", 0)
	s.Require().NoError(err)
	s.Equal(uint64(10), root.SizeBytes, "root keeps only its direct objects")

	err = root.Walk(func(key string, node *domain.StorageNode, depth int) error {
		if depth == 0 {
			return nil
		}
		s.Equal(s.baseline(key), node.SizeBytes, "size of %s", key)
		return nil
	})
	s.Require().NoError(err)
}

func (s *AggregatorTestSuite) TestDateMarkerStopsExpansion() {
	s.seedDeep()

	root, err := s.newAggregator(Options{DateMarker: "date="}).Aggregate(context.Background(), bucket, "", 0)
	s.Require().NoError(err)

	raw, _ := root.Child("raw/")
	events, ok := raw.Child("raw/events/")
	s.Require().True(ok)
	s.Equal([]string{"raw/events/date=2024-01-01/", "raw/events/date=2024-01-02/"}, events.Keys())

	err = root.Walk(func(key string, node *domain.StorageNode, depth int) error {
		if strings.Contains(key, "date=") {
			s.Zero(node.Len(), "%s must be a leaf", key)
		}
		return nil
	})
	s.Require().NoError(err)
}

func (s *AggregatorTestSuite) TestSkipPrefixNeverAppears() {
	s.seedDeep()

	for _, sentinel := range []string{"checkpoints/", "raw/tmp/"} {
		root, err := s.newAggregator(Options{SkipPrefix: sentinel}).Aggregate(context.Background(), bucket, "", 0)
		s.Require().NoError(err)

		err = root.Walk(func(key string, node *domain.StorageNode, depth int) error {
			s.NotEqual(sentinel, key)
			s.False(strings.HasPrefix(key, sentinel) && key != "", "descendant %s of skipped %s", key, sentinel)
			return nil
		})
		s.Require().NoError(err)
	}

	// the parent total still comes from the full listing
	root, err := s.newAggregator(Options{SkipPrefix: "raw/tmp/"}).Aggregate(context.Background(), bucket, "", 0)
	s.Require().NoError(err)
	raw, _ := root.Child("raw/")
	s.Equal(s.baseline("raw/"), raw.SizeBytes)
}

func (s *AggregatorTestSuite) TestEmptyMarkerExpandsEverything() {
	s.seedDeep()

	root, err := s.newAggregator(Options{}).Aggregate(context.Background(), bucket, "", 0)
	s.Require().NoError(err)

	raw, _ := root.Child("raw/")
	events, _ := raw.Child("raw/events/")
	day, ok := events.Child("raw/events/date=2024-01-01/")
	s.Require().True(ok)
	s.Equal([]string{"raw/events/date=2024-01-01/hour=1/"}, day.Keys())
}

func (s *AggregatorTestSuite) TestMaxDepthCapsRecursion() {
	s.seedDeep()

	root, err := s.newAggregator(Options{MaxDepth: 1}).Aggregate(context.Background(), bucket, "", 0)
	s.Require().NoError(err)

	s.Equal([]string{"checkpoints/", "curated/", "raw/"}, root.Keys())
	for _, child := range root.Children() {
		s.Zero(child.Len())
	}
}

func (s *AggregatorTestSuite) TestStartPrefix() {
	s.seedDeep()

	node, err := s.newAggregator(Options{DateMarker: "date="}).Aggregate(context.Background(), bucket, "raw/", 0)
	s.Require().NoError(err)

	s.Equal("raw", node.Name)
	s.Equal(uint64(1000), node.SizeBytes)
	s.Equal([]string{"raw/events/", "raw/tmp/"}, node.Keys())
}

func (s *AggregatorTestSuite) TestListingFailureIdentifiesPrefix() {
	s.seedDeep()
	denied := errors.New("access denied")
	// single-pass only ever lists the start prefix
	failing := "curated/orders/"
	if s.strategy == StrategySinglePass {
		failing = "curated/"
	}
	s.store.FailPrefix(failing, denied)

	start := ""
	if s.strategy == StrategySinglePass {
		start = "curated/"
	}
	_, err := s.newAggregator(Options{}).Aggregate(context.Background(), bucket, start, 0)
	s.Require().Error(err)
	s.ErrorIs(err, denied)

	var listingErr *ListingError
	s.Require().True(errors.As(err, &listingErr))
	s.Equal(bucket, listingErr.Bucket)
	s.Equal(failing, listingErr.Prefix)
}

func (s *AggregatorTestSuite) TestRootListingFailure() {
	s.seedDeep()
	s.store.FailPrefix("", errors.New("bucket unreachable"))

	_, err := s.newAggregator(Options{}).Aggregate(context.Background(), bucket, "", 0)

	var listingErr *ListingError
	s.Require().True(errors.As(err, &listingErr))
	s.Equal("", listingErr.Prefix)
}

func (s *AggregatorTestSuite) TestCanceledContext() {
	s.seedDeep()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.newAggregator(Options{}).Aggregate(ctx, bucket, "", 0)
	s.ErrorIs(err, context.Canceled)
}

func TestStrategiesAgree(t *testing.T) {
	store := storage.NewMemoryStorage(3)
	for key, size := range map[string]uint64{
		"x.bin":                 1,
		"a/1":                   2,
		"a/b/2":                 3,
		"a/b/c/3":               4,
		"a/b/c/dt=2024-05-05/4": 5,
		"a-b/5":                 6,
		"a//odd":                7,
		"z/marker/":             0,
		"z/marker/file":         8,
	} {
		store.AddObject(bucket, key, size)
	}

	opts := Options{DateMarker: "dt=", SkipPrefix: "a/b/c/"}
	relist, err := New(store, Options{DateMarker: opts.DateMarker, SkipPrefix: opts.SkipPrefix, Strategy: StrategyRelist}).
		Aggregate(context.Background(), bucket, "", 0)
	require.NoError(t, err)
	singlePass, err := New(store, Options{DateMarker: opts.DateMarker, SkipPrefix: opts.SkipPrefix, Strategy: StrategySinglePass}).
		Aggregate(context.Background(), bucket, "", 0)
	require.NoError(t, err)

	assert.Equal(t, relist.SizeBytes, singlePass.SizeBytes)
	assert.Equal(t, domain.Flatten(relist), domain.Flatten(singlePass))
}

func TestSinglePassListsOnce(t *testing.T) {
	store := storage.NewMemoryStorage(0)
	store.AddObject(bucket, "a/b/c/1", 1)
	store.AddObject(bucket, "a/b/2", 1)

	_, err := New(store, Options{Strategy: StrategySinglePass}).Aggregate(context.Background(), bucket, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, store.ListCalls(bucket, ""))
	assert.Equal(t, 0, store.ListCalls(bucket, "a/"))

	_, err = New(store, Options{Strategy: StrategyRelist}).Aggregate(context.Background(), bucket, "", 0)
	require.NoError(t, err)
	// level listing for a/ plus its full total
	assert.Equal(t, 2, store.ListCalls(bucket, "a/"))
}

func TestTotals(t *testing.T) {
	store := storage.NewMemoryStorage(1)
	store.AddObject(bucket, "a", 5)
	store.AddObject(bucket, "b/c", 7)

	totals, err := New(store, Options{}).Totals(context.Background(), bucket, "")
	require.NoError(t, err)
	assert.Equal(t, domain.BucketTotals{SizeBytes: 12, ObjectCount: 2}, totals)
}

func TestParentDirs(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want []string
	}{
		{"Root file", "file", nil},
		{"Nested file", "x/y/z.txt", []string{"x/", "x/y/"}},
		{"Folder marker", "x/", []string{"x/"}},
		{"Double delimiter", "a//b", []string{"a/", "a//"}},
		{"Empty key", "", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parentDirs(tc.in, "/"))
		})
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyRelist, s)

	s, err = ParseStrategy(" Single-Pass ")
	require.NoError(t, err)
	assert.Equal(t, StrategySinglePass, s)

	_, err = ParseStrategy("parallel")
	assert.Error(t, err)
}
