// Package reportstore keeps the accumulated HTML report in object storage.
// Every run fetches the current document, inserts its section before the
// closing body marker and overwrites the object.
package reportstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/render"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/storage"
)

// BodyCloseMarker is the insertion point for new sections.
const BodyCloseMarker = "</body>"

// ErrMarkerNotFound means the stored document has no closing body marker.
// Nothing is uploaded when it is returned.
var ErrMarkerNotFound = errors.New("closing </body> marker not found in report")

// Mode selects how a section is inserted.
type Mode string

const (
	// ModeSplice inserts the fragment text right before the last marker.
	ModeSplice Mode = "splice"
	// ModeStructured parses the document and appends the fragment as the
	// last children of <body>.
	ModeStructured Mode = "structured"
)

// ParseMode validates a configured append mode.
func ParseMode(name string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(name))); m {
	case "", ModeSplice:
		return ModeSplice, nil
	case ModeStructured:
		return m, nil
	default:
		return "", fmt.Errorf("unknown report append mode %q", name)
	}
}

type Options struct {
	Mode Mode
	// WorkDir receives a local copy of the uploaded document when set.
	WorkDir  string
	Filename string
	// Title is used when the remote document does not exist yet.
	Title string
}

// AppendResult describes a completed append.
type AppendResult struct {
	Document     string
	Bootstrapped bool
	LocalPath    string
}

type Store struct {
	objects storage.ObjectStorage
	opts    Options
}

func New(objects storage.ObjectStorage, opts Options) *Store {
	if opts.Mode == "" {
		opts.Mode = ModeSplice
	}
	return &Store{objects: objects, opts: opts}
}

// Fetch returns the current remote document.
func (s *Store) Fetch(ctx context.Context, run domain.Run) (string, error) {
	data, err := s.objects.GetObject(ctx, run.ReportBucket, run.ReportKey)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Append adds fragment to the report at run.ReportBucket/run.ReportKey. A
// missing report starts from an empty page.
func (s *Store) Append(ctx context.Context, run domain.Run, fragment string) (*AppendResult, error) {
	result := &AppendResult{}

	current, err := s.Fetch(ctx, run)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		current, err = render.Page(s.opts.Title, "")
		if err != nil {
			return nil, fmt.Errorf("failed to create report page: %w", err)
		}
		result.Bootstrapped = true
		log.Info().
			Str("bucket", run.ReportBucket).
			Str("key", run.ReportKey).
			Msg("no existing report, starting a new document")
	case err != nil:
		return nil, fmt.Errorf("failed to fetch report s3://%s/%s: %w", run.ReportBucket, run.ReportKey, err)
	}

	var updated string
	if s.opts.Mode == ModeStructured {
		updated, err = AppendStructured(current, fragment)
	} else {
		updated, err = Splice(current, fragment)
	}
	if err != nil {
		return nil, fmt.Errorf("report s3://%s/%s: %w", run.ReportBucket, run.ReportKey, err)
	}

	if err := s.objects.PutObject(ctx, run.ReportBucket, run.ReportKey, []byte(updated), storage.ContentTypeHTML); err != nil {
		return nil, fmt.Errorf("failed to upload report s3://%s/%s: %w", run.ReportBucket, run.ReportKey, err)
	}
	result.Document = updated

	log.Info().
		Str("bucket", run.ReportBucket).
		Str("key", run.ReportKey).
		Int("bytes", len(updated)).
		Msg("updated report uploaded")

	if s.opts.WorkDir != "" && s.opts.Filename != "" {
		localPath := filepath.Join(s.opts.WorkDir, s.opts.Filename)
		if err := s.objects.DownloadObject(ctx, run.ReportBucket, run.ReportKey, localPath); err != nil {
			return nil, fmt.Errorf("failed to download report copy: %w", err)
		}
		result.LocalPath = localPath
	}

	return result, nil
}

// Splice inserts fragment immediately before the last closing body marker.
func Splice(doc, fragment string) (string, error) {
	idx := strings.LastIndex(doc, BodyCloseMarker)
	if idx < 0 {
		return "", ErrMarkerNotFound
	}
	return doc[:idx] + fragment + doc[idx:], nil
}

// AppendStructured parses doc and appends the nodes of fragment as the last
// children of its body element. The document is re-serialized, so
// formatting outside the new section may be normalized.
func AppendStructured(doc, fragment string) (string, error) {
	// the parser synthesizes a body for any input, so require a real one
	if !strings.Contains(strings.ToLower(doc), BodyCloseMarker) {
		return "", ErrMarkerNotFound
	}

	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("failed to parse report: %w", err)
	}
	body := findElement(root, atom.Body)
	if body == nil {
		return "", ErrMarkerNotFound
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return "", fmt.Errorf("failed to parse section: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", fmt.Errorf("failed to serialize report: %w", err)
	}
	return buf.String(), nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
