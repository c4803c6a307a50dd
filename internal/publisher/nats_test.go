package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	subject string
	data    []byte
	err     error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	c.subject, c.data = subject, data
	return c.err
}

type countingMetrics struct {
	published, errs, observed int
}

func (m *countingMetrics) NATSPublishedInc()            { m.published++ }
func (m *countingMetrics) NATSPublishErrInc()           { m.errs++ }
func (m *countingMetrics) PublishObserve(time.Duration) { m.observed++ }
func (m *countingMetrics) NATSSetConnected(bool)        {}

func TestSubjectToken(t *testing.T) {
	cases := map[string]string{
		"intra":     "intra",
		" rail ":    "rail",
		"a.b":       "a_b",
		"x > y":     "x___y",
		"*":         "_",
		"":          "_",
		"north/sth": "north_sth",
	}
	for in, want := range cases {
		assert.Equal(t, want, subjectToken(in), "input %q", in)
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "stopgraph.snapshots.intra.rail", newPublisher(nil, "", false, nil, nil).Subject("intra", "rail"))
	assert.Equal(t, "transit.graph.blu.bus", newPublisher(nil, " transit.graph. ", false, nil, nil).Subject("blu", "bus"))
}

func TestPublishSnapshot(t *testing.T) {
	c := &recordingConn{}
	m := &countingMetrics{}
	p := newPublisher(c, "", false, m, nil)

	msg := SnapshotMessage{
		RunID: "run-1", Operator: "intra", Mode: "rail",
		Stops: 3, Routes: 1, Connections: 3,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishSnapshot(context.Background(), msg))
	assert.Equal(t, "stopgraph.snapshots.intra.rail", c.subject)

	var got SnapshotMessage
	require.NoError(t, json.Unmarshal(c.data, &got))
	assert.Equal(t, msg, got)
	assert.Equal(t, 1, m.published)
	assert.Equal(t, 1, m.observed)

	c.err = errors.New("connection closed")
	assert.Error(t, p.PublishSnapshot(context.Background(), msg))
	assert.Equal(t, 1, m.errs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.PublishSnapshot(ctx, msg), context.Canceled)
}
