package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ErrChannelUnavailable signals a channel cannot carry the message to this
// recipient. It is expected during fallback, never fatal on its own.
var ErrChannelUnavailable = errors.New("dispatch: channel unavailable")

// Opener is the platform handoff boundary. A channel builds a target URI and
// the opener answers whether the host can handle it and performs the handoff.
// There is no delivery receipt: a successful Open only means the message was
// handed over.
type Opener interface {
	Supports(ctx context.Context, uri string) (bool, error)
	Open(ctx context.Context, uri string) error
}

// Channel attempts delivery of one message to one recipient. Probe and
// handoff are a single atomic attempt; callers bound it with a timeout.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, phone, message string) error
}

// URIChannel hands a message off through a URI scheme.
type URIChannel struct {
	name   string
	opener Opener
	target func(phone, message string) string
}

func (c *URIChannel) Name() string { return c.name }

func (c *URIChannel) Deliver(ctx context.Context, phone, message string) error {
	uri := c.target(phone, message)

	ok, err := c.opener.Supports(ctx, uri)
	if err != nil {
		return fmt.Errorf("%w: probe %s: %v", ErrChannelUnavailable, c.name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s cannot handle target", ErrChannelUnavailable, c.name)
	}

	if err := c.opener.Open(ctx, uri); err != nil {
		return fmt.Errorf("%w: handoff %s: %v", ErrChannelUnavailable, c.name, err)
	}
	return nil
}

// WhatsApp builds the chat-app deep-link channel.
func WhatsApp(opener Opener) *URIChannel {
	return &URIChannel{
		name:   "whatsapp",
		opener: opener,
		target: func(phone, message string) string {
			return "https://wa.me/" + digitsOnly(phone) + "?text=" + url.QueryEscape(message)
		},
	}
}

// SMS builds the native SMS composer channel.
func SMS(opener Opener) *URIChannel {
	return &URIChannel{
		name:   "sms",
		opener: opener,
		target: func(phone, message string) string {
			return "sms:" + phone + "?body=" + url.QueryEscape(message)
		},
	}
}

// Dialer builds the telephony dialer channel. The message is dropped; only
// the call target survives the scheme.
func Dialer(opener Opener) *URIChannel {
	return &URIChannel{
		name:   "dialer",
		opener: opener,
		target: func(phone, _ string) string {
			return "tel:" + phone
		},
	}
}

func digitsOnly(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LoggingOpener records handoffs instead of launching them. It stands in
// where the host platform performs the actual URI handoff.
type LoggingOpener struct {
	log *zap.Logger
}

func NewLoggingOpener(log *zap.Logger) *LoggingOpener {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingOpener{log: log}
}

func (o *LoggingOpener) Supports(_ context.Context, uri string) (bool, error) {
	return uri != "", nil
}

func (o *LoggingOpener) Open(_ context.Context, uri string) error {
	o.log.Info("channel handoff", zap.String("uri", uri))
	return nil
}
