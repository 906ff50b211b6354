// Package render serializes usage trees into nested collapsible HTML.
package render

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
)

// DefaultMaxDepth bounds recursion on pathological trees.
const DefaultMaxDepth = 256

// ErrTreeTooDeep is returned when a tree nests deeper than the renderer allows.
var ErrTreeTooDeep = errors.New("tree too deep to render")

// FormatGB renders a byte count as gigabytes with two decimals.
func FormatGB(sizeBytes uint64) string {
	return fmt.Sprintf("%.2f GB", domain.GB(sizeBytes))
}

// Summary is the visible line of one collapsible block.
func Summary(node *domain.StorageNode) string {
	return node.Name + " - " + FormatGB(node.SizeBytes)
}

// Renderer writes <details> blocks, one per node, in pre-order.
type Renderer struct {
	MaxDepth int
}

// Render uses a Renderer with DefaultMaxDepth.
func Render(node *domain.StorageNode) (string, error) {
	return Renderer{}.Render(node)
}

// Render serializes node and its descendants. Children are emitted in their
// insertion order, so equal trees render to equal strings.
func (r Renderer) Render(node *domain.StorageNode) (string, error) {
	if node == nil {
		return "", nil
	}
	maxDepth := r.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	var b strings.Builder
	if err := write(&b, node, 0, maxDepth); err != nil {
		return "", err
	}
	return b.String(), nil
}

func write(b *strings.Builder, node *domain.StorageNode, depth, maxDepth int) error {
	if depth >= maxDepth {
		return fmt.Errorf("%w: node %q at depth %d", ErrTreeTooDeep, node.Name, depth)
	}

	b.WriteString("<details><summary>")
	b.WriteString(html.EscapeString(Summary(node)))
	b.WriteString("</summary>")
	for _, child := range node.Children() {
		if err := write(b, child, depth+1, maxDepth); err != nil {
			return err
		}
	}
	b.WriteString("</details>")
	return nil
}
