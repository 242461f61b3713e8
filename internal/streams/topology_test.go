package streams

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	natsclient "github.com/FortiumPartners/devpulse/common/messaging/nats"
)

// fakeJetStream records stream operations without a broker.
type fakeJetStream struct {
	existing  map[string]bool
	created   []natsclient.StreamConfig
	published map[string]int
	leaders   map[string]string
	infoErr   error
	pubErr    error
}

func newFakeJetStream(existing ...string) *fakeJetStream {
	f := &fakeJetStream{
		existing:  make(map[string]bool),
		published: make(map[string]int),
		leaders:   make(map[string]string),
	}
	for _, name := range existing {
		f.existing[name] = true
		f.leaders[name] = "n1"
	}
	return f
}

func (f *fakeJetStream) EnsureStream(ctx context.Context, cfg natsclient.StreamConfig) (bool, error) {
	if f.existing[cfg.Name] {
		return false, nil
	}
	f.existing[cfg.Name] = true
	f.leaders[cfg.Name] = "n1"
	f.created = append(f.created, cfg)
	return true, nil
}

func (f *fakeJetStream) StreamInfo(ctx context.Context, name string) (*jetstream.StreamInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if !f.existing[name] {
		return nil, errors.New("stream not found")
	}
	return &jetstream.StreamInfo{
		Cluster: &jetstream.ClusterInfo{Leader: f.leaders[name]},
	}, nil
}

func (f *fakeJetStream) PublishSync(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	if f.pubErr != nil {
		return nil, f.pubErr
	}
	f.published[subject]++
	return &jetstream.PubAck{}, nil
}

func TestTopology_DeclaresFiveStreams(t *testing.T) {
	topo := Topology()
	require.Len(t, topo, 5)

	byName := make(map[string]Descriptor)
	for _, d := range topo {
		byName[d.Name] = d
	}

	assert.Equal(t, 12, byName[StreamRaw].Partitions)
	assert.Equal(t, 1, byName[StreamDeadLetter].Partitions)
	assert.Equal(t, 7*24*time.Hour, byName[StreamRaw].Retention)
	assert.Equal(t, 30*24*time.Hour, byName[StreamProcessed].Retention)
	assert.Equal(t, 90*24*time.Hour, byName[StreamAggregated].Retention)
	assert.Equal(t, 30*24*time.Hour, byName[StreamAlerts].Retention)
	assert.Equal(t, 7*24*time.Hour, byName[StreamDeadLetter].Retention)

	// Raw carries the most partitions for ingestion parallelism.
	for _, d := range topo {
		assert.LessOrEqual(t, d.Partitions, byName[StreamRaw].Partitions)
	}
}

func TestReconcile_CreatesMissingStreams(t *testing.T) {
	fake := newFakeJetStream()
	m := newManagerWith(fake, nil)

	require.NoError(t, m.Reconcile(context.Background()))
	assert.Len(t, fake.created, 5)

	// Raw stream declares one subject per partition.
	for _, cfg := range fake.created {
		if cfg.Name == StreamRaw {
			assert.Len(t, cfg.Subjects, 12)
			assert.Equal(t, "telemetry.raw.0", cfg.Subjects[0])
			assert.Equal(t, 7*24*time.Hour, cfg.MaxAge)
		}
	}
}

func TestReconcile_LeavesExistingStreamsUntouched(t *testing.T) {
	fake := newFakeJetStream(StreamRaw, StreamProcessed, StreamAggregated, StreamAlerts, StreamDeadLetter)
	m := newManagerWith(fake, nil)

	require.NoError(t, m.Reconcile(context.Background()))
	assert.Empty(t, fake.created, "existing streams must not be recreated")
}

func TestReconcile_Idempotent(t *testing.T) {
	fake := newFakeJetStream()
	m := newManagerWith(fake, nil)

	require.NoError(t, m.Reconcile(context.Background()))
	require.NoError(t, m.Reconcile(context.Background()))
	assert.Len(t, fake.created, 5, "second reconcile must be a no-op")
}

func TestHealth_AllHealthy(t *testing.T) {
	fake := newFakeJetStream(StreamRaw, StreamProcessed, StreamAggregated, StreamAlerts, StreamDeadLetter)
	m := newManagerWith(fake, nil)

	statuses, healthy := m.Health(context.Background())
	assert.True(t, healthy)
	assert.Len(t, statuses, 5)
	for _, s := range statuses {
		assert.Truef(t, s.Healthy, "stream %s should be healthy", s.Name)
	}
}

func TestHealth_LeaderlessStreamUnhealthy(t *testing.T) {
	fake := newFakeJetStream(StreamRaw, StreamProcessed, StreamAggregated, StreamAlerts, StreamDeadLetter)
	fake.leaders[StreamAlerts] = ""
	m := newManagerWith(fake, nil)

	statuses, healthy := m.Health(context.Background())
	assert.False(t, healthy)
	for _, s := range statuses {
		if s.Name == StreamAlerts {
			assert.False(t, s.Healthy)
			assert.Equal(t, "stream has no leader", s.Error)
		}
	}
}

func TestPublish_RoutesByKeyHash(t *testing.T) {
	fake := newFakeJetStream(StreamRaw)
	m := newManagerWith(fake, nil)

	ctx := context.Background()
	key := "acme|command.duration_ms"
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Publish(ctx, StreamRaw, key, []byte("{}")))
	}

	// Same key always lands on the same partition subject.
	assert.Len(t, fake.published, 1)
	for subject, count := range fake.published {
		assert.Contains(t, subject, "telemetry.raw.")
		assert.Equal(t, 10, count)
	}
}

func TestPublish_UnknownStream(t *testing.T) {
	fake := newFakeJetStream()
	m := newManagerWith(fake, nil)

	err := m.Publish(context.Background(), "BOGUS", "k", nil)
	require.Error(t, err)
}

func TestPublish_PropagatesBrokerError(t *testing.T) {
	fake := newFakeJetStream(StreamRaw)
	fake.pubErr = errors.New("buffer full")
	m := newManagerWith(fake, nil)

	err := m.Publish(context.Background(), StreamRaw, "k", []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buffer full")
}
