package mail

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/contactbook/apiserver/config"
)

// Kind identifies the flow that produced a message.
type Kind string

const (
	KindVerifyEmail   Kind = "verify_email"
	KindPasswordReset Kind = "password_reset"
)

// Message is one outgoing plain-text email. It is also the job payload
// carried over the message queue.
type Message struct {
	Kind    Kind   `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate reports whether the message can be sent.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("mail: recipient is required")
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return errors.New("mail: header values must not contain line breaks")
	}
	return nil
}

// Decode parses a queued job.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode mail job: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Builder renders the account emails with links taken from config.
type Builder struct {
	verifyURL string
	resetURL  string
}

func NewBuilder(cfg config.MailConfig) Builder {
	return Builder{verifyURL: cfg.VerifyURL, resetURL: cfg.ResetURL}
}

// Verification is sent after registration.
func (b Builder) Verification(to, token string) Message {
	return Message{
		Kind:    KindVerifyEmail,
		To:      to,
		Subject: "Email Verification",
		Body:    "Click to verify your email: " + withToken(b.verifyURL, token),
	}
}

// PasswordReset carries a link to the frontend reset page.
func (b Builder) PasswordReset(to, token string) Message {
	return Message{
		Kind:    KindPasswordReset,
		To:      to,
		Subject: "Password Reset Request",
		Body:    "Click the link to reset your password: " + withToken(b.resetURL, token),
	}
}

func withToken(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
