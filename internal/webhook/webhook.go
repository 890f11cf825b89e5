package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spal-labs/transcriberd/internal/jobs"
)

// Sender posts a finished job as JSON to a configured endpoint. It satisfies
// jobs.Notifier, so completion fans out to email and webhook alike.
type Sender struct {
	url    string
	client *http.Client
}

func NewSender(url string) *Sender {
	return &Sender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Sender) Notify(job *jobs.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %s", resp.Status)
	}
	return nil
}
