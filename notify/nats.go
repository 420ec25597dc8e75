package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"tidbyt.dev/transit"
)

// The parts of *nats.Conn used here.
type Conn interface {
	PublishMsg(msg *nats.Msg) error
	Drain() error
	Close()
}

// Publishes compiled feed events as JSON on NATS.
//
// Events go to "<subject>.<source>", with the source reduced to a
// single subject token, and carry the feed ID in a Transit-Feed
// header.
type NATSPublisher struct {
	conn    Conn
	subject string
	logger  zerolog.Logger
}

var _ transit.Notifier = (*NATSPublisher)(nil)

func NewNATSPublisher(url string, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("transit"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Debug().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	return NewNATSPublisherWithConn(nc, subject, logger), nil
}

func NewNATSPublisherWithConn(conn Conn, subject string, logger zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:    conn,
		subject: strings.TrimSuffix(subject, "."),
		logger:  logger,
	}
}

func (p *NATSPublisher) FeedCompiled(ctx context.Context, event transit.FeedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	msg := nats.NewMsg(fmt.Sprintf("%s.%s", p.subject, subjectToken(event.Source)))
	msg.Header.Set("Transit-Feed", event.Feed)
	msg.Data = data

	err = p.conn.PublishMsg(msg)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", msg.Subject, err)
	}

	p.logger.Debug().Str("subject", msg.Subject).Str("feed", event.Feed).Msg("published")
	return nil
}

func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("draining nats")
	}
	p.conn.Close()
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://", "http://", "file://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	// Tokens can't contain spaces, '>', '*' or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_", ":", "_")
	s = strings.Trim(repl.Replace(s), "_")
	if s == "" {
		s = "_"
	}
	return s
}
