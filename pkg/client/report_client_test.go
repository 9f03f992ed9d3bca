package client

import (
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantlink-statarb/pkg/backtest"
	"github.com/yourusername/quantlink-statarb/pkg/logging"
	"github.com/yourusername/quantlink-statarb/pkg/metrics"
	"github.com/yourusername/quantlink-statarb/pkg/signal"
)

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

type fakeSubscriber struct {
	subjects []string
	handlers []nats.MsgHandler
	err      error
}

func (f *fakeSubscriber) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subject)
	f.handlers = append(f.handlers, handler)
	return new(nats.Subscription), nil
}

func sampleReport(t *testing.T) *backtest.Report {
	t.Helper()
	res, err := backtest.Simulate(
		[]float64{0, 1, 1, 0},
		[]float64{0, 0.01, -0.02, 0.03},
		nil,
		backtest.SimulationConfig{CostRate: 0.001},
	)
	require.NoError(t, err)
	r, err := backtest.NewReport(res, backtest.ReportMeta{
		Pair: "AAA/BBB",
		Long: &signal.Document{Lt: []*float64{signal.Float(-1), nil}, SignalType: signal.Long},
	})
	require.NoError(t, err)
	return r
}

func TestEncodeDecodeReport(t *testing.T) {
	r := sampleReport(t)

	data, err := EncodeReport(r)
	require.NoError(t, err)

	back, err := DecodeReport(data)
	require.NoError(t, err)
	assert.Equal(t, r.RunID, back.RunID)
	assert.Equal(t, r.Pair, back.Pair)
	assert.Equal(t, r.Summary, back.Summary)
	assert.Equal(t, r.Trades, back.Trades)
	assert.Equal(t, r.Series, back.Series)
	assert.True(t, r.GeneratedAt.Equal(back.GeneratedAt))
	require.NotNil(t, back.Long)
	assert.Equal(t, -1.0, *back.Long.Lt[0])
	assert.Nil(t, back.Long.Lt[1])
}

func TestDecodeReport_Garbage(t *testing.T) {
	_, err := DecodeReport([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "statarb.reports.AAA_BBB", Subject("statarb.reports", "AAA/BBB"))
	assert.Equal(t, "statarb.reports.a_b_c", Subject("statarb.reports", "a.b c"))
	assert.Equal(t, "statarb.reports", Subject("statarb.reports", ""))
}

func TestReportPublisher_Publish(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	fake := &fakePublisher{}
	pub := NewReportPublisher(fake, "statarb.reports", logging.Discard(), collector)

	r := sampleReport(t)
	require.NoError(t, pub.Publish(r))

	require.Len(t, fake.subjects, 1)
	assert.Equal(t, "statarb.reports.AAA_BBB", fake.subjects[0])
	back, err := DecodeReport(fake.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, r.RunID, back.RunID)

	fake.err = errors.New("connection closed")
	assert.Error(t, pub.Publish(r))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ReportsPublished.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ReportsPublished.WithLabelValues("error")))
}

func TestReportHandler(t *testing.T) {
	r := sampleReport(t)
	data, err := EncodeReport(r)
	require.NoError(t, err)

	var got []*backtest.Report
	handle := reportHandler(logging.WithComponent(nil, "test"), func(rep *backtest.Report) {
		got = append(got, rep)
	})

	handle(&nats.Msg{Subject: "statarb.reports.AAA_BBB", Data: data})
	handle(&nats.Msg{Subject: "statarb.reports.AAA_BBB", Data: []byte("not protobuf")})

	require.Len(t, got, 1)
	assert.Equal(t, r.RunID, got[0].RunID)
}

func TestReportSubscriber_Subscribe(t *testing.T) {
	r := sampleReport(t)
	data, err := EncodeReport(r)
	require.NoError(t, err)

	fake := &fakeSubscriber{}
	sub := NewReportSubscriber(fake, logging.Discard())

	var got []*backtest.Report
	require.NoError(t, sub.Subscribe("statarb.reports.>", func(rep *backtest.Report) {
		got = append(got, rep)
	}))
	require.Equal(t, []string{"statarb.reports.>"}, fake.subjects)

	fake.handlers[0](&nats.Msg{Subject: Subject("statarb.reports", r.Pair), Data: data})
	require.Len(t, got, 1)
	assert.Equal(t, r.RunID, got[0].RunID)
	assert.Equal(t, r.Summary, got[0].Summary)

	assert.NoError(t, sub.Close())
	assert.Empty(t, sub.subs)
}

func TestReportSubscriber_SubscribeError(t *testing.T) {
	sub := NewReportSubscriber(&fakeSubscriber{err: nats.ErrBadSubject}, nil)
	err := sub.Subscribe("", func(*backtest.Report) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, nats.ErrBadSubject)
	assert.Empty(t, sub.subs)
}
