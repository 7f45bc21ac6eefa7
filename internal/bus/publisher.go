package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// PublisherConfig holds the JetStream connection and stream parameters.
type PublisherConfig struct {
	URL        string
	Username   string
	Password   string
	StreamName string
	Subject    string
	Logger     *slog.Logger
}

func (c *PublisherConfig) Validate() error {
	if c.URL == "" {
		return errors.New("nats url is required")
	}
	if c.StreamName == "" {
		return errors.New("stream name is required")
	}
	if c.Subject == "" {
		return errors.New("subject is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Publisher publishes batches to a durable JetStream stream. Each message
// carries a Nats-Msg-Id header so the stream's duplicate window dedupes
// redelivered batches.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	log     *slog.Logger
}

// Connect dials NATS, ensures the stream exists, and returns a publisher.
func Connect(cfg PublisherConfig) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []nats.Option{
		nats.Name("sdg-bridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.URL, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	if _, err := js.StreamInfo(cfg.StreamName); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, fmt.Errorf("stream info %s: %w", cfg.StreamName, err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       cfg.StreamName,
			Subjects:   []string{cfg.Subject},
			Storage:    nats.FileStorage,
			Duplicates: 2 * time.Minute,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
		}
		cfg.Logger.Info("created jetstream stream", "stream", cfg.StreamName, "subject", cfg.Subject)
	}

	return &Publisher{nc: nc, js: js, subject: cfg.Subject, log: cfg.Logger}, nil
}

// PublishBatch serializes and publishes each batch, returning how many
// failed alongside the joined errors. Batches already published stay
// published; the dedupe header makes a caller-side retry safe.
func (p *Publisher) PublishBatch(batches []*LoggerBatch) (int, error) {
	var errs []error
	for _, b := range batches {
		msg := nats.NewMsg(p.subject)
		msg.Data = Frame(b)
		msg.Header.Set(nats.MsgIdHdr, b.MsgID())

		if _, err := p.js.PublishMsg(msg); err != nil {
			errs = append(errs, fmt.Errorf("publish batch %s: %w", b.MsgID(), err))
		}
	}
	return len(errs), errors.Join(errs...)
}

// Close drains the connection.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.log.Error("nats drain failed", "error", err)
		p.nc.Close()
	}
}
