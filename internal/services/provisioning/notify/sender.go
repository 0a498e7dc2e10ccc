// Package notify defines the outbound email boundary for invitations.
package notify

import (
	"context"
	"log"
	"sync"

	"github.com/careloop/careloop/internal/services/provisioning/domain/invite"
)

// InvitationMessage is one outbound invitation email intent.
type InvitationMessage struct {
	// DedupeKey makes redelivery safe; senders must treat a repeated key
	// as already sent.
	DedupeKey      string
	OrganizationID string
	Email          string
	Role           string
	// Token is the signed invitation token embedded in the email link.
	Token string
}

// Sender delivers invitation emails. Implementations must be idempotent on
// DedupeKey.
type Sender interface {
	SendInvitation(ctx context.Context, message InvitationMessage) error
}

// MessageFor builds the delivery intent for one invitation.
func MessageFor(invitation invite.Invitation, token string) InvitationMessage {
	return InvitationMessage{
		DedupeKey:      "invite:" + invitation.ID,
		OrganizationID: invitation.OrganizationID,
		Email:          invitation.Email,
		Role:           invitation.Role,
		Token:          token,
	}
}

// LogSender logs intents instead of delivering them, for local development.
type LogSender struct {
	logf func(format string, args ...any)

	mu   sync.Mutex
	seen map[string]bool
}

// NewLogSender creates a log-only sender.
func NewLogSender(logf func(format string, args ...any)) *LogSender {
	if logf == nil {
		logf = log.Printf
	}
	return &LogSender{logf: logf, seen: map[string]bool{}}
}

// SendInvitation logs the intent once per dedupe key.
func (s *LogSender) SendInvitation(_ context.Context, message InvitationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[message.DedupeKey] {
		return nil
	}
	s.seen[message.DedupeKey] = true
	s.logf("invitation email for %s (org %s, role %s)", message.Email, message.OrganizationID, message.Role)
	return nil
}

var _ Sender = (*LogSender)(nil)

// CaptureSender records intents in memory for tests.
type CaptureSender struct {
	mu       sync.Mutex
	messages []InvitationMessage
	// Err forces the next send to fail.
	Err error
}

// NewCaptureSender creates an empty capture sender.
func NewCaptureSender() *CaptureSender {
	return &CaptureSender{}
}

// SendInvitation records the intent, deduplicating on DedupeKey.
func (s *CaptureSender) SendInvitation(_ context.Context, message InvitationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, existing := range s.messages {
		if existing.DedupeKey == message.DedupeKey {
			return nil
		}
	}
	s.messages = append(s.messages, message)
	return nil
}

// Messages returns a copy of the captured intents.
func (s *CaptureSender) Messages() []InvitationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]InvitationMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

var _ Sender = (*CaptureSender)(nil)
