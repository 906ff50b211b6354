package domain

import (
	"iter"
	"strings"
)

// BytesPerGB is the divisor used when presenting sizes; sizes are always
// accumulated as integer bytes.
const BytesPerGB = 1024 * 1024 * 1024

// GB converts a byte count to gigabytes for display.
func GB(sizeBytes uint64) float64 {
	return float64(sizeBytes) / BytesPerGB
}

// StorageNode is one folder of the usage tree. Children are keyed by the raw,
// delimiter-terminated prefix and iterate in insertion order.
type StorageNode struct {
	Name      string
	SizeBytes uint64

	keys     []string
	children map[string]*StorageNode
}

// NewStorageNode returns a childless node.
func NewStorageNode(name string, sizeBytes uint64) *StorageNode {
	return &StorageNode{Name: name, SizeBytes: sizeBytes}
}

// NodeName strips the trailing delimiter from a prefix.
func NodeName(prefix, delimiter string) string {
	if delimiter == "" {
		return prefix
	}
	return strings.TrimSuffix(prefix, delimiter)
}

// SetChild attaches child under key. Re-setting an existing key replaces the
// node but keeps its original position.
func (n *StorageNode) SetChild(key string, child *StorageNode) {
	if n.children == nil {
		n.children = make(map[string]*StorageNode)
	}
	if _, exists := n.children[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.children[key] = child
}

// Child looks up a direct child by key.
func (n *StorageNode) Child(key string) (*StorageNode, bool) {
	child, ok := n.children[key]
	return child, ok
}

// Keys returns the child keys in insertion order.
func (n *StorageNode) Keys() []string {
	return append([]string(nil), n.keys...)
}

// Len returns the number of direct children.
func (n *StorageNode) Len() int {
	return len(n.keys)
}

// Children iterates direct children in insertion order.
func (n *StorageNode) Children() iter.Seq2[string, *StorageNode] {
	return func(yield func(string, *StorageNode) bool) {
		for _, key := range n.keys {
			if !yield(key, n.children[key]) {
				return
			}
		}
	}
}

// AdoptChildren moves every child of other under n, in other's order.
func (n *StorageNode) AdoptChildren(other *StorageNode) {
	if other == nil {
		return
	}
	for key, child := range other.Children() {
		n.SetChild(key, child)
	}
}

// Walk visits n and its descendants depth-first in pre-order. The root is
// visited with an empty key and depth 0. Returning an error stops the walk.
func (n *StorageNode) Walk(fn func(key string, node *StorageNode, depth int) error) error {
	return n.walk("", 0, fn)
}

func (n *StorageNode) walk(key string, depth int, fn func(string, *StorageNode, int) error) error {
	if err := fn(key, n, depth); err != nil {
		return err
	}
	for childKey, child := range n.Children() {
		if err := child.walk(childKey, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of nodes in the tree rooted at n, n included.
func (n *StorageNode) Count() int {
	total := 0
	_ = n.Walk(func(string, *StorageNode, int) error {
		total++
		return nil
	})
	return total
}
