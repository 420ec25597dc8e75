package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/transit"
)

type fakeConn struct {
	msgs    []*nats.Msg
	err     error
	drained bool
	closed  bool
}

func (c *fakeConn) PublishMsg(msg *nats.Msg) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func (c *fakeConn) Close() {
	c.closed = true
}

func TestNATSPublisher(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisherWithConn(conn, "transit.feeds.", zerolog.Nop())

	event := transit.FeedEvent{
		Feed:       "6a2f",
		Source:     "https://example.com/gtfs.zip",
		Rows:       map[string]int{"stops.txt": 4},
		CompiledAt: time.Date(2012, 3, 29, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.FeedCompiled(context.Background(), event))

	require.Equal(t, 1, len(conn.msgs))
	msg := conn.msgs[0]
	assert.Equal(t, "transit.feeds.example_com_gtfs_zip", msg.Subject)
	assert.Equal(t, "6a2f", msg.Header.Get("Transit-Feed"))

	decoded := transit.FeedEvent{}
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, event, decoded)

	p.Close()
	assert.True(t, conn.drained)
	assert.True(t, conn.closed)
}

func TestNATSPublisherFailure(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	p := NewNATSPublisherWithConn(conn, "transit.feeds", zerolog.Nop())

	err := p.FeedCompiled(context.Background(), transit.FeedEvent{Source: "/tmp/feed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transit.feeds.tmp_feed")
}

func TestSubjectToken(t *testing.T) {
	for in, expected := range map[string]string{
		"https://example.com/gtfs.zip": "example_com_gtfs_zip",
		"file:///data/feed.zip":        "data_feed_zip",
		"feed dir":                     "feed_dir",
		"a>b*c":                        "a_b_c",
		"":                             "_",
		"...":                          "_",
	} {
		assert.Equal(t, expected, subjectToken(in), in)
	}
}
