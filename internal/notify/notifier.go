// Package notify mails finished space consumption reports.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/config"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
)

// Sender delivers composed messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

var bodyTemplate = template.Must(template.New("body").Parse(`<html>
<body>
<p>Hi Team,</p>

<p>
Please find attached the Space Consumption Analysis Report for the Environment related to the segment: <strong>{{.Segment}}</strong>.</p>
<p>The report provides an overview of the current storage utilization as of {{.Date}}.</p>
{{if .Report}}
{{.Report}}
{{end}}
<p>Thank you for your attention.</p>
</body>
</html>
`))

type bodyData struct {
	Segment string
	Date    string
	Report  template.HTML
}

// Options controls what goes into each message.
type Options struct {
	From string
	To   []string
	// InlineReport appends the rendered section to the body.
	InlineReport bool
	// WorkDir is scanned for attachments.
	WorkDir string
	// AttachmentMatch selects files whose name contains it.
	AttachmentMatch string
	// HTMLFilename is always attached when present in WorkDir.
	HTMLFilename string
}

type Notifier struct {
	sender Sender
	opts   Options
}

func New(sender Sender, opts Options) *Notifier {
	return &Notifier{sender: sender, opts: opts}
}

// NewClient builds a go-mail client from the SMTP settings. A zero port
// keeps the library default for the TLS policy.
func NewClient(cfg config.MailConfig) (*mail.Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}

	policy, err := ParseTLSPolicy(cfg.TLSPolicy)
	if err != nil {
		return nil, err
	}
	opts := []mail.Option{mail.WithTLSPolicy(policy)}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client for %s: %w", cfg.Host, err)
	}
	return client, nil
}

// ParseTLSPolicy maps a config value onto a go-mail TLS policy.
func ParseTLSPolicy(name string) (mail.TLSPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "opportunistic":
		return mail.TLSOpportunistic, nil
	case "mandatory":
		return mail.TLSMandatory, nil
	case "none", "notls":
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, fmt.Errorf("unknown smtp tls policy %q", name)
	}
}

// Subject is the mail subject for run.
func Subject(run domain.Run) string {
	return fmt.Sprintf(" %s: %sSpace Consumption Analysis Report", run.ISODate(), run.Segment)
}

// Compose builds the message for run. fragment is the rendered report
// section, used only when InlineReport is set.
func (n *Notifier) Compose(run domain.Run, fragment string) (*mail.Msg, error) {
	if n.opts.From == "" || len(n.opts.To) == 0 {
		return nil, errors.New("mail sender and at least one recipient are required")
	}

	m := mail.NewMsg()
	if err := m.From(n.opts.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", n.opts.From, err)
	}
	if err := m.To(n.opts.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	m.Subject(Subject(run))

	data := bodyData{Segment: run.Segment, Date: run.ISODate()}
	if n.opts.InlineReport {
		// fragment comes from the renderer, which escapes node names
		data.Report = template.HTML(fragment)
	}
	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("failed to render mail body: %w", err)
	}
	m.SetBodyString(mail.TypeTextHTML, body.String())

	attachments, err := n.Attachments(run)
	if err != nil {
		return nil, err
	}
	for _, path := range attachments {
		m.AttachFile(path)
	}

	return m, nil
}

// Attachments lists the files in WorkDir to attach for run, sorted by name.
// A file matches when its name contains AttachmentMatch and the run date, so
// workbooks left behind by earlier runs are not mailed again. The HTML report
// is attached whenever present.
func (n *Notifier) Attachments(run domain.Run) ([]string, error) {
	if n.opts.WorkDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(n.opts.WorkDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", n.opts.WorkDir, err)
	}

	date := run.ISODate()
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		matched := n.opts.AttachmentMatch != "" &&
			strings.Contains(name, n.opts.AttachmentMatch) &&
			strings.Contains(name, date)
		if matched || (n.opts.HTMLFilename != "" && name == n.opts.HTMLFilename) {
			paths = append(paths, filepath.Join(n.opts.WorkDir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Notify composes and sends the report mail. Send errors are returned as is;
// there is no retry.
func (n *Notifier) Notify(ctx context.Context, run domain.Run, fragment string) error {
	m, err := n.Compose(run, fragment)
	if err != nil {
		return err
	}
	if err := n.sender.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send report mail: %w", err)
	}

	log.Info().
		Strs("to", n.opts.To).
		Str("subject", Subject(run)).
		Msg("report mail sent")
	return nil
}
