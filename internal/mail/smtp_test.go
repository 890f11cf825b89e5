package mail

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPConfig_Configured(t *testing.T) {
	assert.False(t, SMTPConfig{}.Configured())
	assert.False(t, SMTPConfig{Host: "smtp.example.com"}.Configured())
	assert.True(t, SMTPConfig{Host: "smtp.example.com", Sender: "svc@example.com"}.Configured())
}

func TestSMTPConfig_FromHeader(t *testing.T) {
	cfg := SMTPConfig{Sender: "svc@example.com"}
	assert.Equal(t, "svc@example.com", cfg.fromHeader())

	cfg.SenderName = "Transcriber"
	assert.Equal(t, "Transcriber <svc@example.com>", cfg.fromHeader())
}

func TestBuildMessage_PlainBody(t *testing.T) {
	payload, err := buildMessage("svc@example.com", Message{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Transcript: Weekly Meeting",
		Body:    "done\n",
	})
	require.NoError(t, err)

	content := string(payload)
	assert.Contains(t, content, "From: svc@example.com\r\n")
	assert.Contains(t, content, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, content, "Subject: Transcript: Weekly Meeting\r\n")
	assert.Contains(t, content, "Content-Type: text/plain")
	assert.Contains(t, content, "done\n")
}

func TestBuildMessage_WithAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weekly-meeting.txt")
	require.NoError(t, os.WriteFile(path, []byte("transcript text"), 0o644))

	payload, err := buildMessage("svc@example.com", Message{
		To:             []string{"a@example.com"},
		Subject:        "s",
		Body:           "see attachment",
		AttachmentPath: path,
	})
	require.NoError(t, err)

	content := string(payload)
	assert.Contains(t, content, "multipart/mixed")
	assert.Contains(t, content, `filename="weekly-meeting.txt"`)
	assert.Contains(t, content, "Content-Transfer-Encoding: base64")
	assert.Contains(t, content, "see attachment")
}

func TestBuildMessage_MissingAttachment(t *testing.T) {
	_, err := buildMessage("svc@example.com", Message{
		To:             []string{"a@example.com"},
		Subject:        "s",
		Body:           "b",
		AttachmentPath: filepath.Join(t.TempDir(), "gone.txt"),
	})
	assert.Error(t, err)
}
