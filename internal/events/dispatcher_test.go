package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/client"
)

type recordingSink struct {
	mu      sync.Mutex
	events  []Event
	block   chan struct{}
	entered chan struct{}
	once    sync.Once
	err     error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Write(ctx context.Context, batch []Event) error {
	if s.entered != nil {
		s.once.Do(func() { close(s.entered) })
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return s.err
}

func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestDispatcherDeliversToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{err: errors.New("down")}
	d := NewDispatcher(16, time.Second, a, b)

	for i := 0; i < 5; i++ {
		d.Publish(New(LoginFailed, time.Now()))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, a.all(), 5)
	assert.Len(t, b.all(), 5)
	assert.Zero(t, d.Dropped())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{}), entered: make(chan struct{})}
	d := NewDispatcher(1, time.Minute, sink)

	d.Publish(New(LoginFailed, time.Now()))
	<-sink.entered

	// The worker is stuck in the sink and the buffer holds one event.
	for i := 0; i < 10; i++ {
		d.Publish(New(LoginFailed, time.Now()))
	}
	assert.Equal(t, uint64(9), d.Dropped())

	close(sink.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, sink.all(), 2)
}

func TestDispatcherIgnoresPublishAfterClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(4, time.Second, sink)
	require.NoError(t, d.Close(context.Background()))

	d.Publish(New(LoginSucceeded, time.Now()))
	assert.Empty(t, sink.all())
	require.NoError(t, d.Close(context.Background()))
}

type fakeProducer struct {
	topics []string
	keys   []string
	values [][]byte
}

func (p *fakeProducer) ProduceMessage(_ context.Context, topic string, key, value []byte, _ map[string]string) error {
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, value)
	return nil
}

func TestKafkaSinkKeysByAccount(t *testing.T) {
	p := &fakeProducer{}
	sink := NewKafkaSink(p, "admin-security-events")

	e1 := New(LoginSucceeded, time.Now())
	e1.AccountID = "acct-1"
	e2 := New(LoginFailed, time.Now())
	e2.Email = "a@x.com"
	require.NoError(t, sink.Write(context.Background(), []Event{e1, e2}))

	assert.Equal(t, []string{"admin-security-events", "admin-security-events"}, p.topics)
	assert.Equal(t, []string{"acct-1", "a@x.com"}, p.keys)

	var decoded Event
	require.NoError(t, json.Unmarshal(p.values[0], &decoded))
	assert.Equal(t, LoginSucceeded, decoded.Type)
}

type fakeClickHouse struct {
	rows []client.SecurityEventRow
}

func (f *fakeClickHouse) InsertSecurityEvents(_ context.Context, rows []client.SecurityEventRow) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func TestClickHouseSinkMapsEventsToRows(t *testing.T) {
	ch := &fakeClickHouse{}
	sink := NewClickHouseSink(ch)

	e := New(AccountDeleted, time.Now())
	e.AccountID = "acct-1"
	e.Detail = map[string]string{"deleted_by": "acct-2"}
	require.NoError(t, sink.Write(context.Background(), []Event{e}))

	require.Len(t, ch.rows, 1)
	assert.Equal(t, e.ID, ch.rows[0].EventID)
	assert.Equal(t, string(AccountDeleted), ch.rows[0].EventType)
	assert.Equal(t, "acct-1", ch.rows[0].AccountID)
	assert.Equal(t, "acct-2", ch.rows[0].Detail["deleted_by"])
	assert.Equal(t, e.OccurredAt, ch.rows[0].OccurredAt)
}
