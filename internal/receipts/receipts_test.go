package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/db"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/migrate"
	"github.com/angelmondragon/packfinderz-pos/pkg/outbox"
)

type recordingRenderer struct {
	mu      sync.Mutex
	calls   []string
	failFor enums.ReceiptFormat
	seen    chan struct{}
}

func (r *recordingRenderer) Render(_ context.Context, job Job, format enums.ReceiptFormat) error {
	r.mu.Lock()
	r.calls = append(r.calls, job.SaleID+":"+format.String())
	r.mu.Unlock()
	defer func() { r.seen <- struct{}{} }()
	if format == r.failFor {
		return errors.New("printer offline")
	}
	return nil
}

type failureCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *failureCounter) IncReceiptFailure(format string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[format]++
}

func TestDispatcherRendersEachFormat(t *testing.T) {
	renderer := &recordingRenderer{failFor: enums.ReceiptFormatThermal, seen: make(chan struct{}, 4)}
	counter := &failureCounter{counts: map[string]int{}}
	d, err := NewDispatcher(DispatcherParams{Renderer: renderer, Logger: logger.Nop(), Metrics: counter, QueueSize: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()

	require.NoError(t, d.Enqueue(Job{SaleID: "s1", Formats: enums.PrintModeBoth.Formats()}))
	for i := 0; i < 2; i++ {
		select {
		case <-renderer.seen:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for render")
		}
	}
	cancel()
	<-d.Done()

	require.Equal(t, []string{"s1:standard", "s1:thermal"}, renderer.calls)
	require.Equal(t, 1, counter.counts["thermal"])
}

func TestDispatcherQueueFull(t *testing.T) {
	d, err := NewDispatcher(DispatcherParams{Renderer: &recordingRenderer{seen: make(chan struct{}, 8)}, Logger: logger.Nop(), QueueSize: 1})
	require.NoError(t, err)

	require.NoError(t, d.Enqueue(Job{SaleID: "s1", Formats: []enums.ReceiptFormat{enums.ReceiptFormatStandard}}))
	require.ErrorIs(t, d.Enqueue(Job{SaleID: "s2", Formats: []enums.ReceiptFormat{enums.ReceiptFormatStandard}}), ErrQueueFull)
	require.NoError(t, d.Enqueue(Job{SaleID: "s3"}), "jobs without formats are skipped")
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	renderer := &recordingRenderer{seen: make(chan struct{}, 8)}
	d, err := NewDispatcher(DispatcherParams{Renderer: renderer, Logger: logger.Nop(), QueueSize: 4})
	require.NoError(t, err)

	require.NoError(t, d.Enqueue(Job{SaleID: "s1", Formats: []enums.ReceiptFormat{enums.ReceiptFormatStandard}}))
	require.NoError(t, d.Enqueue(Job{SaleID: "s2", Formats: []enums.ReceiptFormat{enums.ReceiptFormatStandard}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))
	require.Len(t, renderer.calls, 2)
}

func TestDispatcherRejectsJobsAfterShutdown(t *testing.T) {
	renderer := &recordingRenderer{seen: make(chan struct{}, 8)}
	d, err := NewDispatcher(DispatcherParams{Renderer: renderer, Logger: logger.Nop(), QueueSize: 4})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	err = d.Enqueue(Job{SaleID: "late", Formats: []enums.ReceiptFormat{enums.ReceiptFormatStandard}})
	require.ErrorIs(t, err, ErrDispatcherClosed)
	require.Empty(t, renderer.calls)
}

type fakeReceiptAPI struct {
	saleID string
	req    backoffice.RenderReceiptRequest
}

func (f *fakeReceiptAPI) RenderReceipt(_ context.Context, saleID string, req backoffice.RenderReceiptRequest) error {
	f.saleID = saleID
	f.req = req
	return nil
}

func TestHTTPRenderer(t *testing.T) {
	api := &fakeReceiptAPI{}
	r, err := NewHTTPRenderer(api)
	require.NoError(t, err)

	require.NoError(t, r.Render(context.Background(), Job{SaleID: "s1", TerminalID: "t1"}, enums.ReceiptFormatThermal))
	require.Equal(t, "s1", api.saleID)
	require.Equal(t, "thermal", api.req.Format)
	require.Equal(t, "t1", api.req.TerminalID)
}

type fakePublisher struct {
	msg *gcppubsub.Message
	err error
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.msg = msg
	return fakeResult{err: f.err}
}

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) { return "msg-1", r.err }

func TestPubSubRendererPublishesPrintJob(t *testing.T) {
	pub := &fakePublisher{}
	r := &PubSubRenderer{pub: pub}

	require.NoError(t, r.Render(context.Background(), Job{SaleID: "s1", ReceiptNumber: "R-9", TerminalID: "t1"}, enums.ReceiptFormatStandard))
	require.NotNil(t, pub.msg)
	require.Equal(t, "s1", pub.msg.Attributes["sale_id"])
	require.Equal(t, "standard", pub.msg.Attributes["format"])

	var body outbox.ReceiptRenderEvent
	require.NoError(t, json.Unmarshal(pub.msg.Data, &body))
	require.Equal(t, "R-9", body.ReceiptNumber)

	pub.err = errors.New("unavailable")
	require.Error(t, r.Render(context.Background(), Job{SaleID: "s1"}, enums.ReceiptFormatStandard))
}

func TestOutboxRendererQueuesOncePerFormat(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, migrate.Run(context.Background(), sqlDB, "sqlite3", "up"))

	svc := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	r, err := NewOutboxRenderer(db.Wrap(conn), svc)
	require.NoError(t, err)

	job := Job{SaleID: "s1", TerminalID: "t1"}
	ctx := context.Background()
	require.NoError(t, r.Render(ctx, job, enums.ReceiptFormatStandard))
	require.NoError(t, r.Render(ctx, job, enums.ReceiptFormatStandard))
	require.NoError(t, r.Render(ctx, job, enums.ReceiptFormatThermal))

	var rows []models.OutboxEvent
	require.NoError(t, conn.Order("aggregate_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.Equal(t, "s1:standard", rows[0].AggregateID)
	require.Equal(t, enums.EventReceiptRender, rows[0].EventType)
}
