// Package notification delivers trade alerts to external channels
// (Telegram, webhooks) with console output as the fallback.
// Delivery is best-effort: callers wrap notifiers in Fallback so a failed
// send never reaches the decision engine.
package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. Action alerts carry the
// fully formatted text in Message and leave Title empty.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title,omitempty"`
	Message string     `json:"message"`
	Kind    string     `json:"kind,omitempty"`
	TradeID string     `json:"trade_id,omitempty"`
}

// Text is the plain-text rendering used by text channels.
func (a Alert) Text() string {
	if a.Title == "" {
		return a.Message
	}
	if a.Message == "" {
		return a.Title
	}
	return a.Title + "\n" + a.Message
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier prints alerts to the console. It is the default when no
// channel is configured.
type LogNotifier struct {
	out io.Writer
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NewWriterNotifier creates a console notifier writing to w.
func NewWriterNotifier(w io.Writer) *LogNotifier {
	return &LogNotifier{out: w}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	if n.out != nil {
		_, err := fmt.Fprintf(n.out, "[ALERT] %s\n", alert.Text())
		return err
	}
	log.Printf("[ALERT] %s", alert.Text())
	return nil
}

// Fallback sends through Primary and, if that fails, prints the alert to
// Console. Send never returns an error.
type Fallback struct {
	Primary Notifier
	Console Notifier

	// OnError is called for every failed primary delivery (optional).
	OnError func(err error)
}

// NewFallback wraps primary with console fallback.
func NewFallback(primary Notifier) *Fallback {
	return &Fallback{Primary: primary, Console: NewLogNotifier()}
}

func (f *Fallback) Send(ctx context.Context, alert Alert) error {
	err := f.Primary.Send(ctx, alert)
	if err == nil {
		return nil
	}
	log.Printf("[notify] delivery failed: %v", err)
	if f.OnError != nil {
		f.OnError(err)
	}
	if f.Console != nil {
		_ = f.Console.Send(ctx, alert)
	}
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options selects the channels built by FromConfig.
type Options struct {
	TelegramToken   string
	TelegramChatIDs []string
	WebhookURL      string

	// OnError is passed to the Fallback wrapper (optional).
	OnError func(err error)
}

// FromConfig builds the notifier for the configured channels: Telegram
// and/or webhook behind a console Fallback, or a plain console notifier
// when nothing is configured.
func FromConfig(opts Options) Notifier {
	var chans Multi
	if opts.TelegramToken != "" && len(opts.TelegramChatIDs) > 0 {
		chans = append(chans, NewTelegramNotifier(opts.TelegramToken, opts.TelegramChatIDs...))
	}
	if opts.WebhookURL != "" {
		chans = append(chans, NewWebhookNotifier(opts.WebhookURL))
	}
	if len(chans) == 0 {
		log.Printf("[notify] no channel configured, alerts go to the console")
		return NewLogNotifier()
	}
	var primary Notifier = chans
	if len(chans) == 1 {
		primary = chans[0]
	}
	fb := NewFallback(primary)
	fb.OnError = opts.OnError
	return fb
}
