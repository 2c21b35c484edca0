// Package jobs runs background work on asynq: welcome mail after a member
// registers, plus the worker, client and queue health endpoint.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeWelcomeMail greets a newly registered member.
	TaskTypeWelcomeMail = "mail:welcome"
)

// WelcomePayload identifies the member to greet.
type WelcomePayload struct {
	MemberID int64  `json:"member_id"`
	Login    string `json:"login"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// NewWelcomeTask constructs an asynq task for payload.
func NewWelcomeTask(payload WelcomePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode welcome payload: %w", err)
	}
	return asynq.NewTask(TaskTypeWelcomeMail, data, asynq.MaxRetry(5)), nil
}

// WelcomeHandler processes TaskTypeWelcomeMail tasks.
type WelcomeHandler struct {
	Mailer  Mailer
	SiteURL string
	Logger  *slog.Logger
	Metrics *Metrics
}

// ProcessTask sends the welcome message. Malformed payloads are not retried.
func (h WelcomeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	return h.Metrics.Track(TaskTypeWelcomeMail).End(h.process(ctx, t))
}

func (h WelcomeHandler) process(ctx context.Context, t *asynq.Task) error {
	var payload WelcomePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("jobs: decode welcome payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Email == "" {
		return fmt.Errorf("jobs: welcome member %d has no email: %w", payload.MemberID, asynq.SkipRetry)
	}
	msg := welcomeMessage(payload, h.SiteURL)
	if err := h.Mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("jobs: send welcome to member %d: %w", payload.MemberID, err)
	}
	if h.Logger != nil {
		h.Logger.Info("welcome mail sent", slog.Int64("member_id", payload.MemberID))
	}
	return nil
}

func welcomeMessage(p WelcomePayload, siteURL string) Message {
	name := p.Name
	if name == "" {
		name = p.Login
	}
	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", name)
	body.WriteString("Welcome to the club! Your account has been created.\n\n")
	fmt.Fprintf(&body, "Username: %s\n", p.Login)
	if siteURL != "" {
		fmt.Fprintf(&body, "Log in at %s/login to complete your profile.\n", strings.TrimRight(siteURL, "/"))
	}
	return Message{To: p.Email, Subject: "Welcome to the club", Body: body.String()}
}
