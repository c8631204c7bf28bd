package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	skafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-tenancy-backend/internal/domain"
)

type memSink struct {
	name string
	mu   sync.Mutex
	got  []Request
	// fail the first n deliveries
	failFirst int
	calls     int
}

func (m *memSink) Name() string { return m.name }

func (m *memSink) Deliver(_ context.Context, req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failFirst {
		return errors.New("transient")
	}
	m.got = append(m.got, req)
	return nil
}

func (m *memSink) delivered() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.got...)
}

// blockingSink holds every delivery until release is closed.
type blockingSink struct{ release chan struct{} }

func (b *blockingSink) Name() string { return "blocking" }
func (b *blockingSink) Deliver(ctx context.Context, _ Request) error {
	<-b.release
	return nil
}

func TestDispatcher_FansOutToEverySink(t *testing.T) {
	a, b := &memSink{name: "a"}, &memSink{name: "b"}
	d := NewDispatcher(Options{QueueSize: 8, Workers: 2}, a, b)

	for i := 0; i < 5; i++ {
		d.Notify(context.Background(), Request{UserID: fmt.Sprintf("u%d", i), Type: ReviewRevealed})
	}
	require.NoError(t, d.Close(context.Background()))

	require.Len(t, a.delivered(), 5)
	require.Len(t, b.delivered(), 5)
}

func TestDispatcher_RetriesWithBackoff(t *testing.T) {
	s := &memSink{name: "flaky", failFirst: 2}
	before := testutil.ToFloat64(notifyDelivered.WithLabelValues("flaky"))

	d := NewDispatcher(Options{Workers: 1, MaxAttempts: 3, RetryBackoff: time.Millisecond}, s)
	d.Notify(context.Background(), Request{UserID: "u1", Type: TenancyConfirmed})
	require.NoError(t, d.Close(context.Background()))

	require.Len(t, s.delivered(), 1)
	require.Equal(t, 3, s.calls)
	require.Equal(t, before+1, testutil.ToFloat64(notifyDelivered.WithLabelValues("flaky")))
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	s := &memSink{name: "down", failFirst: 100}
	before := testutil.ToFloat64(notifyFailed.WithLabelValues("down"))

	d := NewDispatcher(Options{Workers: 1, MaxAttempts: 2, RetryBackoff: time.Millisecond}, s)
	d.Notify(context.Background(), Request{UserID: "u1", Type: TenancyConfirmed})
	require.NoError(t, d.Close(context.Background()))

	require.Empty(t, s.delivered())
	require.Equal(t, 2, s.calls)
	require.Equal(t, before+1, testutil.ToFloat64(notifyFailed.WithLabelValues("down")))
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	bs := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Options{QueueSize: 1, Workers: 1}, bs)
	before := testutil.ToFloat64(notifyDropped)

	// The worker takes the first request and blocks; the second fills the
	// queue; everything after is dropped.
	d.Notify(context.Background(), Request{UserID: "u", Type: ReviewAvailable})
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	d.Notify(context.Background(), Request{UserID: "u", Type: ReviewAvailable})
	d.Notify(context.Background(), Request{UserID: "u", Type: ReviewAvailable})
	d.Notify(context.Background(), Request{UserID: "u", Type: ReviewAvailable})

	require.Equal(t, before+2, testutil.ToFloat64(notifyDropped))
	close(bs.release)
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_CloseTwiceAndNotifyAfterClose(t *testing.T) {
	s := &memSink{name: "late"}
	d := NewDispatcher(Options{}, s)
	require.NoError(t, d.Close(context.Background()))
	require.ErrorIs(t, d.Close(context.Background()), ErrClosed)

	before := testutil.ToFloat64(notifyDropped)
	d.Notify(context.Background(), Request{UserID: "u", Type: ReviewAvailable})
	require.Equal(t, before+1, testutil.ToFloat64(notifyDropped))
	require.Empty(t, s.delivered())
}

func TestDispatcher_CloseHonoursDeadline(t *testing.T) {
	bs := &blockingSink{release: make(chan struct{})}
	defer close(bs.release)
	d := NewDispatcher(Options{Workers: 1}, bs)
	d.Notify(context.Background(), Request{UserID: "u", Type: ReviewAvailable})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
}

func TestBatch_SkipsEmptyRecipientsAndSends(t *testing.T) {
	var b Batch
	b.Add(TenancyConfirmed, map[string]string{"tenancy_id": "t1"}, "ll", "", "tt")
	require.Len(t, b, 2)

	rec := &Recorder{}
	b.Send(context.Background(), rec)
	b.Send(context.Background(), nil)
	require.Equal(t, 1, rec.Count(TenancyConfirmed, "ll"))
	require.Equal(t, 2, rec.Count(TenancyConfirmed, ""))
}

func TestSubject(t *testing.T) {
	require.Equal(t, "Tenancy Proposed", Subject(TenancyProposed))
	require.Equal(t, "Review Counterpart Submitted", Subject(ReviewCounterpartWritten))
}

func TestInboxSink_StoresNotification(t *testing.T) {
	dsn := fmt.Sprintf("file:notify_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Notification{}))

	at := time.Date(2025, 7, 8, 0, 0, 0, 0, time.UTC)
	s := &InboxSink{DB: db, Now: func() time.Time { return at }}
	require.NoError(t, s.Deliver(context.Background(), Request{
		UserID: "tt", Type: ReviewAvailable, Context: map[string]string{"tenancy_id": "t1"},
	}))

	var got domain.Notification
	require.NoError(t, db.First(&got, "user_id = ?", "tt").Error)
	require.Equal(t, "review_available", got.Type)
	require.Equal(t, "Review Available", got.Subject)
	require.Equal(t, "t1", got.Context["tenancy_id"])
	require.True(t, got.CreatedAt.Equal(at))
}

type fakeWriter struct {
	msgs   []skafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...skafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { f.closed = true; return nil }

func TestKafkaSink_KeysByUser(t *testing.T) {
	fw := &fakeWriter{}
	s := NewKafkaSinkWithWriter(fw)

	require.NoError(t, s.Deliver(context.Background(), Request{UserID: "ll", Type: ExtensionProposed}))
	require.Len(t, fw.msgs, 1)
	require.Equal(t, "ll", string(fw.msgs[0].Key))
	require.Contains(t, string(fw.msgs[0].Value), `"type":"tenancy_extension_proposed"`)
	require.Contains(t, string(fw.msgs[0].Value), `"subject":"Tenancy Extension Proposed"`)

	// Dispatcher closes sinks that can be closed.
	d := NewDispatcher(Options{}, s)
	require.NoError(t, d.Close(context.Background()))
	require.True(t, fw.closed)
}
