package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/vialytics/service/metrics"
	natspkg "github.com/brojonat/vialytics/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const keepaliveInterval = 10 * time.Second

// EventSource delivers job events for one wallet until ctx is done.
type EventSource interface {
	Subscribe(ctx context.Context, wallet string) (<-chan *natspkg.JobEvent, error)
	Close() error
}

// SSEPublisher streams job events out of JetStream.
type SSEPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSSEPublisher connects to NATS for event consumption and creates the
// job stream when the worker hasn't yet.
func NewSSEPublisher(natsURL string, logger *slog.Logger) (*SSEPublisher, error) {
	nc, js, err := natspkg.Connect(natsURL, "vialytics-sse")
	if err != nil {
		return nil, err
	}
	if err := natspkg.EnsureStream(context.Background(), js, logger); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}
	logger.Info("SSE publisher initialized", "nats_url", natsURL)
	return &SSEPublisher{nc: nc, js: js, logger: logger}, nil
}

// Subscribe creates an ephemeral consumer on the wallet's subject that only
// sees events published from now on.
func (p *SSEPublisher) Subscribe(ctx context.Context, wallet string) (<-chan *natspkg.JobEvent, error) {
	cons, err := p.js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
		FilterSubject:     natspkg.Subject(wallet),
		AckPolicy:         jetstream.AckExplicitPolicy,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	out := make(chan *natspkg.JobEvent, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		defer msg.Ack()
		var event natspkg.JobEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			p.logger.Warn("failed to unmarshal job event", "subject", msg.Subject(), "error", err)
			return
		}
		select {
		case out <- &event:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
		<-cc.Closed()
		close(out)
	}()
	return out, nil
}

// Close closes the NATS connection.
func (p *SSEPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("SSE publisher closed")
	}
	return nil
}

// handleStreamJobs streams job events for a wallet as Server-Sent Events.
// The stream ends when the client disconnects.
// GET /api/v1/stream/jobs/{address}
func handleStreamJobs(events EventSource, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		ch, err := events.Subscribe(ctx, address)
		if err != nil {
			logger.ErrorContext(ctx, "failed to subscribe to job events", "wallet", address, "error", err)
			writeError(w, "failed to subscribe", http.StatusServiceUnavailable)
			return
		}

		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		if m != nil {
			m.RecordSSEConnectionChange(address, 1)
			defer m.RecordSSEConnectionChange(address, -1)
		}
		logger.DebugContext(ctx, "SSE client connected", "wallet", address, "remote_addr", r.RemoteAddr)

		fmt.Fprintf(w, "event: connected\ndata: {\"wallet\":%q}\n\n", address)
		rc.Flush()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				rc.Flush()

			case event, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(ctx, "failed to marshal job event", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: job\ndata: %s\n\n", data)
				rc.Flush()
				if m != nil {
					m.RecordSSEEventSent(address, "job")
				}
				logger.DebugContext(ctx, "sent job event",
					"wallet", address,
					"job_id", event.JobID,
					"status", event.Status,
				)

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected", "wallet", address, "remote_addr", r.RemoteAddr)
				return
			}
		}
	})
}
