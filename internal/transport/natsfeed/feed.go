// Package natsfeed 从 NATS 订阅车辆实时更新
//
// <subject> 上的消息按车辆增量更新解析，<subject>.telemetry 上的消息按车载遥测解析。
// 带 reply 的消息会收到 {"ok":true,...} 或 {"ok":false,"error":...} 应答。
package natsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/langchou/fleetgazer/internal/models"
)

const handleTimeout = 5 * time.Second

// Ingester 更新写入口
type Ingester interface {
	Ingest(ctx context.Context, raw []byte) (models.Vehicle, error)
	IngestTelemetry(ctx context.Context, raw []byte) (models.Vehicle, error)
}

// Feed NATS 订阅者
type Feed struct {
	url      string
	subject  string
	ingester Ingester
	logger   *zap.Logger

	mu   sync.Mutex
	conn *nats.Conn
}

type reply struct {
	OK        bool   `json:"ok"`
	VehicleID string `json:"vehicleId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// New 创建 Feed
func New(url, subject string, ingester Ingester, logger *zap.Logger) *Feed {
	return &Feed{
		url:      url,
		subject:  subject,
		ingester: ingester,
		logger:   logger,
	}
}

// TelemetrySubject 遥测数据的 subject
func (f *Feed) TelemetrySubject() string {
	return f.subject + ".telemetry"
}

// Start 连接并订阅
func (f *Feed) Start() error {
	conn, err := nats.Connect(f.url,
		nats.Name("fleetgazer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			f.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			f.logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			f.logger.Error("NATS async error", zap.String("subject", subject), zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}

	handlers := map[string]func(context.Context, []byte) (models.Vehicle, error){
		f.subject:            f.ingester.Ingest,
		f.TelemetrySubject(): f.ingester.IngestTelemetry,
	}

	for subject, ingest := range handlers {
		ingest := ingest
		if _, err := conn.Subscribe(subject, func(msg *nats.Msg) {
			f.handle(msg, ingest)
		}); err != nil {
			conn.Close()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	f.logger.Info("NATS feed started",
		zap.String("url", f.url),
		zap.String("subject", f.subject),
		zap.String("telemetry_subject", f.TelemetrySubject()))
	return nil
}

func (f *Feed) handle(msg *nats.Msg, ingest func(context.Context, []byte) (models.Vehicle, error)) {
	body := f.process(msg.Subject, msg.Data, ingest)
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(body); err != nil {
		f.logger.Warn("Failed to respond", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// process 写入一条消息并返回应答内容
func (f *Feed) process(subject string, data []byte, ingest func(context.Context, []byte) (models.Vehicle, error)) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	var r reply
	v, err := ingest(ctx, data)
	if err != nil {
		f.logger.Debug("NATS update rejected", zap.String("subject", subject), zap.Error(err))
		r.Error = err.Error()
	} else {
		r.OK = true
		r.VehicleID = v.ID
	}

	body, _ := json.Marshal(r)
	return body
}

// Stop 排空订阅并断开连接
func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return
	}
	if err := f.conn.Drain(); err != nil {
		f.logger.Warn("NATS drain failed", zap.Error(err))
		f.conn.Close()
	}
	f.conn = nil
}
