// Package client publishes backtest reports over NATS.
package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/yourusername/quantlink-statarb/pkg/backtest"
	"github.com/yourusername/quantlink-statarb/pkg/logging"
	"github.com/yourusername/quantlink-statarb/pkg/metrics"
)

// Publisher is the part of *nats.Conn the publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect 连接 NATS
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// EncodeReport serialises r as a protobuf Struct.
func EncodeReport(r *backtest.Report) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to convert report: %w", err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return data, nil
}

// DecodeReport is the inverse of EncodeReport.
func DecodeReport(data []byte) (*backtest.Report, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	var r backtest.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}

// Subject returns the subject a pair's reports go to, e.g.
// "statarb.reports.AAA_BBB".
func Subject(prefix, pair string) string {
	if pair == "" {
		return prefix
	}
	return prefix + "." + subjectToken(pair)
}

func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '/', '\t':
			return '_'
		}
		return r
	}, s)
}

// ReportPublisher 发布回测报告
type ReportPublisher struct {
	pub     Publisher
	prefix  string
	log     *logrus.Entry
	metrics *metrics.Collector
}

// NewReportPublisher publishes to <prefix>.<pair>.
func NewReportPublisher(pub Publisher, prefix string, logger *logrus.Logger, collector *metrics.Collector) *ReportPublisher {
	return &ReportPublisher{
		pub:     pub,
		prefix:  prefix,
		log:     logging.WithComponent(logger, "Publisher"),
		metrics: collector,
	}
}

// Publish sends one report.
func (p *ReportPublisher) Publish(r *backtest.Report) (err error) {
	defer func() { p.metrics.ObservePublish(err) }()

	data, err := EncodeReport(r)
	if err != nil {
		return err
	}
	subject := Subject(p.prefix, r.Pair)
	if err := p.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	p.log.WithField("subject", subject).Debugf("Published report %s (%d bytes)", r.RunID, len(data))
	return nil
}

// Subscriber is the subscribing half of *nats.Conn.
type Subscriber interface {
	Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// ReportSubscriber 订阅回测报告
type ReportSubscriber struct {
	conn Subscriber
	subs []*nats.Subscription
	log  *logrus.Entry
}

// NewReportSubscriber wraps an open connection.
func NewReportSubscriber(conn Subscriber, logger *logrus.Logger) *ReportSubscriber {
	return &ReportSubscriber{conn: conn, log: logging.WithComponent(logger, "Subscriber")}
}

// Subscribe delivers every decodable report on subject (wildcards allowed).
func (s *ReportSubscriber) Subscribe(subject string, handler func(*backtest.Report)) error {
	sub, err := s.conn.Subscribe(subject, reportHandler(s.log, handler))
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close 取消订阅
func (s *ReportSubscriber) Close() error {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
	return nil
}

func reportHandler(log *logrus.Entry, handler func(*backtest.Report)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		r, err := DecodeReport(msg.Data)
		if err != nil {
			log.WithField("subject", msg.Subject).Warnf("Dropping message: %v", err)
			return
		}
		handler(r)
	}
}
