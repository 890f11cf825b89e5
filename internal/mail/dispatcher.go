package mail

import (
	"fmt"
	"strings"
	"time"

	"github.com/spal-labs/transcriberd/internal/jobs"
	"github.com/spal-labs/transcriberd/pkg/log"
)

// notifyMarker is the slice of the job store the dispatcher needs.
type notifyMarker interface {
	MarkNotified(id string, at time.Time) error
}

// Dispatcher resolves the recipient set for a done job and delivers the
// transcript. A delivery failure is reported to the caller and leaves the job
// untouched: NotifiedAt stays unset and the job remains done.
type Dispatcher struct {
	resolver  *Resolver
	transport Transport
	store     notifyMarker
	subject   string
	body      string
}

func NewDispatcher(resolver *Resolver, transport Transport, store notifyMarker, subject, body string) *Dispatcher {
	return &Dispatcher{
		resolver:  resolver,
		transport: transport,
		store:     store,
		subject:   subject,
		body:      body,
	}
}

func (d *Dispatcher) Notify(job *jobs.Job) error {
	if job.Status != jobs.StatusDone {
		return fmt.Errorf("job %s is %s, only done jobs are notified", job.ID, job.Status)
	}

	recipients := d.resolver.Resolve(job.Group)
	if len(recipients) == 0 {
		log.Info("No recipients for job %s (group %q), skipping notification", job.ID, job.Group)
		return nil
	}

	msg := Message{
		To:             recipients,
		Subject:        renderTemplate(d.subject, job),
		Body:           renderTemplate(d.body, job),
		AttachmentPath: job.ResultPath,
	}
	if err := d.transport.Send(msg); err != nil {
		return fmt.Errorf("deliver notification for job %s: %w", job.ID, err)
	}

	if err := d.store.MarkNotified(job.ID, time.Now()); err != nil {
		return fmt.Errorf("mark job %s notified: %w", job.ID, err)
	}
	log.Info("Notification for job %s sent to %d recipient(s)", job.ID, len(recipients))
	return nil
}

// SmokeTest sends a short plain message to the first main recipient so an
// operator can verify SMTP settings without running a job.
func (d *Dispatcher) SmokeTest() error {
	recipients := d.resolver.Resolve("")
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients in main recipients file")
	}
	msg := Message{
		To:      recipients[:1],
		Subject: "[SMTP TEST] transcriberd",
		Body:    "This is an SMTP test from the transcriber service.\nIf you received this, SMTP works.\n",
	}
	if err := d.transport.Send(msg); err != nil {
		return err
	}
	log.Info("SMTP test message sent to %s", recipients[0])
	return nil
}

// renderTemplate substitutes the job-derived {name} and {slug} placeholders.
func renderTemplate(tmpl string, job *jobs.Job) string {
	ret := strings.ReplaceAll(tmpl, "{name}", job.Name)
	return strings.ReplaceAll(ret, "{slug}", job.Slug)
}
