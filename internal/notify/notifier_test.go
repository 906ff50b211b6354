package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/config"
	"github.com/andresuchdata/space-evaluation/backend-go/internal/domain"
)

type fakeSender struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeSender) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, messages...)
	return nil
}

func testRun() domain.Run {
	return domain.Run{
		Bucket:  "lake",
		Segment: "S3_SIZE",
		Date:    time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
	}
}

func workDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"S3_SIZE_space_usage_2024-02-01.xlsx", "s3_output.html", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "space_usage_dir"), 0o755))
	return dir
}

func partsContent(t *testing.T, m *mail.Msg) string {
	t.Helper()
	var out string
	for _, part := range m.GetParts() {
		content, err := part.GetContent()
		require.NoError(t, err)
		out += string(content)
	}
	return out
}

func TestSubject(t *testing.T) {
	assert.Equal(t, " 2024-02-01: S3_SIZESpace Consumption Analysis Report", Subject(testRun()))
}

func TestCompose(t *testing.T) {
	dir := workDir(t)
	n := New(&fakeSender{}, Options{
		From:            "reports@example.com",
		To:              []string{"ops@example.com", "data@example.com"},
		WorkDir:         dir,
		AttachmentMatch: "space_usage",
		HTMLFilename:    "s3_output.html",
	})

	m, err := n.Compose(testRun(), "<details><summary>inline</summary></details>")
	require.NoError(t, err)

	assert.Equal(t, []string{Subject(testRun())}, m.GetGenHeader(mail.HeaderSubject))

	recipients, err := m.GetRecipients()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ops@example.com", "data@example.com"}, recipients)

	var names []string
	for _, file := range m.GetAttachments() {
		names = append(names, file.Name)
	}
	assert.Equal(t, []string{"S3_SIZE_space_usage_2024-02-01.xlsx", "s3_output.html"}, names)

	body := partsContent(t, m)
	assert.Contains(t, body, "<strong>S3_SIZE</strong>")
	assert.Contains(t, body, "as of 2024-02-01")
	assert.NotContains(t, body, "inline")
}

func TestComposeInlineReport(t *testing.T) {
	n := New(&fakeSender{}, Options{
		From:         "reports@example.com",
		To:           []string{"ops@example.com"},
		InlineReport: true,
	})

	m, err := n.Compose(testRun(), "<details><summary>inline</summary></details>")
	require.NoError(t, err)
	assert.Contains(t, partsContent(t, m), "<details><summary>inline</summary></details>")
	assert.Empty(t, m.GetAttachments())
}

func TestComposeRequiresAddresses(t *testing.T) {
	_, err := New(&fakeSender{}, Options{From: "reports@example.com"}).Compose(testRun(), "")
	assert.Error(t, err)

	_, err = New(&fakeSender{}, Options{From: "not an address", To: []string{"ops@example.com"}}).Compose(testRun(), "")
	assert.Error(t, err)
}

func TestAttachmentsMissingDir(t *testing.T) {
	n := New(&fakeSender{}, Options{WorkDir: filepath.Join(t.TempDir(), "absent"), AttachmentMatch: "x"})
	paths, err := n.Attachments(testRun())
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestAttachmentsOnlyCurrentRun(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"S3_SIZE_space_usage_2024-02-01.xlsx",
		"S3_SIZE_space_usage_2024-02-02.xlsx",
		"S3_SIZE_space_usage_2024-02-03.xlsx",
		"s3_output.html",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	n := New(&fakeSender{}, Options{WorkDir: dir, AttachmentMatch: "space_usage", HTMLFilename: "s3_output.html"})

	run := testRun()
	run.Date = time.Date(2024, time.February, 3, 0, 0, 0, 0, time.UTC)
	paths, err := n.Attachments(run)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "S3_SIZE_space_usage_2024-02-03.xlsx"),
		filepath.Join(dir, "s3_output.html"),
	}, paths)
}

func TestNotify(t *testing.T) {
	sender := &fakeSender{}
	n := New(sender, Options{From: "reports@example.com", To: []string{"ops@example.com"}})

	require.NoError(t, n.Notify(context.Background(), testRun(), ""))
	assert.Len(t, sender.sent, 1)

	relayDown := errors.New("connection refused")
	sender.err = relayDown
	err := n.Notify(context.Background(), testRun(), "")
	assert.ErrorIs(t, err, relayDown)
	assert.Len(t, sender.sent, 1)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(config.MailConfig{})
	assert.Error(t, err)

	client, err := NewClient(config.MailConfig{Host: "smtp.example.com", Port: 2525, Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewClient(config.MailConfig{Host: "smtp.example.com", TLSPolicy: "sometimes"})
	assert.Error(t, err)
}

func TestParseTLSPolicy(t *testing.T) {
	p, err := ParseTLSPolicy("")
	require.NoError(t, err)
	assert.Equal(t, mail.TLSOpportunistic, p)

	p, err = ParseTLSPolicy("Mandatory")
	require.NoError(t, err)
	assert.Equal(t, mail.TLSMandatory, p)

	p, err = ParseTLSPolicy("none")
	require.NoError(t, err)
	assert.Equal(t, mail.NoTLS, p)
}
