package aggregator

import (
	"context"
	"sort"
	"strings"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage"
)

// folder is an in-memory trie node keyed by full prefix.
type folder struct {
	size     uint64
	children map[string]*folder
}

func (f *folder) child(prefix string) *folder {
	if f.children == nil {
		f.children = make(map[string]*folder)
	}
	c, ok := f.children[prefix]
	if !ok {
		c = &folder{}
		f.children[prefix] = c
	}
	return c
}

func (a *Aggregator) aggregateSinglePass(ctx context.Context, bucket, prefix string, depth int) (*domain.StorageNode, error) {
	root := &folder{}
	var ownSize uint64

	err := a.lister.ListObjects(ctx, bucket, prefix, func(obj storage.ObjectInfo) error {
		dirs := parentDirs(strings.TrimPrefix(obj.Key, prefix), a.opts.Delimiter)
		if len(dirs) == 0 {
			ownSize += obj.Size
			return nil
		}
		// every enclosing folder gets the object's bytes
		cur := root
		for _, dir := range dirs {
			cur = cur.child(prefix + dir)
			cur.size += obj.Size
		}
		return nil
	})
	if err != nil {
		return nil, &ListingError{Bucket: bucket, Prefix: prefix, Op: OpListObjects, Err: err}
	}

	node := domain.NewStorageNode(domain.NodeName(prefix, a.opts.Delimiter), ownSize)
	a.attach(node, root, depth)
	return node, nil
}

// attach copies f's children under node in key order, applying the same
// skip and expansion rules as the level-by-level walk.
func (a *Aggregator) attach(node *domain.StorageNode, f *folder, depth int) {
	keys := make([]string, 0, len(f.children))
	for key := range f.children {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if a.skip(key) {
			continue
		}
		child := f.children[key]
		childNode := domain.NewStorageNode(domain.NodeName(key, a.opts.Delimiter), child.size)
		logChild(key, depth, child.size)
		if a.descend(key, depth) {
			a.attach(childNode, child, depth+1)
		}
		node.SetChild(key, childNode)
	}
}

// parentDirs returns the folder prefixes enclosing a relative key, outermost
// first: "x/y/z.txt" -> ["x/", "x/y/"].
func parentDirs(rest, delimiter string) []string {
	if delimiter == "" {
		return nil
	}
	var dirs []string
	offset := 0
	for {
		idx := strings.Index(rest[offset:], delimiter)
		if idx < 0 {
			return dirs
		}
		offset += idx + len(delimiter)
		dirs = append(dirs, rest[:offset])
	}
}
