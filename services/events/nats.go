// Package eventsvc publishes domain events.
package eventsvc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core"
)

// Envelope is what goes on the wire for every event.
type Envelope struct {
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(subject string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "json.Marshal")
	}
	return json.Marshal(Envelope{Subject: subject, OccurredAt: time.Now().UTC(), Data: data})
}

var _ core.EventPublisher = (*NATSPublisher)(nil) // interface compliance check

type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// Connect dials NATS. It returns a NoopPublisher when url is empty.
func Connect(conf core.NATSConfig, appName string) (core.EventPublisher, func(), error) {
	if conf.URL == "" {
		return core.NoopPublisher, func() {}, nil
	}
	conn, err := nats.Connect(conf.URL, nats.Name(appName), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, errors.Wrap(err, "nats.Connect")
	}
	return &NATSPublisher{conn: conn, prefix: conf.SubjectPrefix}, conn.Close, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload interface{}) error {
	if p.prefix != "" {
		subject = p.prefix + "." + subject
	}
	msg, err := newEnvelope(subject, payload)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.conn.Publish(subject, msg), "nats.Publish(%s)", subject)
}

var _ core.EventPublisher = (*Recorder)(nil) // interface compliance check

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Publish(_ context.Context, subject string, payload interface{}) error {
	msg, err := newEnvelope(subject, payload)
	if err != nil {
		return err
	}
	var env Envelope
	_ = json.Unmarshal(msg, &env)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
	return nil
}

// Subjects lists the subjects published so far, in order.
func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	subjects := make([]string, len(r.events))
	for i, e := range r.events {
		subjects[i] = e.Subject
	}
	return subjects
}

func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.events...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
