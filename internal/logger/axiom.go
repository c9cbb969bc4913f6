package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
)

const (
	axiomBatchSize  = 200
	axiomMaxPending = 1000
	axiomTimeout    = 15 * time.Second
)

type ingestFunc func(ctx context.Context, dataset string, events []axiom.Event) error

// axiomSink is a zerolog.LevelWriter that batches info and above for Axiom.
// Events are flushed every interval, when a batch fills up, and on Close.
type axiomSink struct {
	dataset string
	ingest  ingestFunc

	mu      sync.Mutex
	pending []axiom.Event
	dropped int

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newAxiomSink(token, orgID, dataset string, every time.Duration) (*axiomSink, error) {
	opts := []axiom.Option{axiom.SetToken(token)}
	if orgID != "" {
		opts = append(opts, axiom.SetOrganizationID(orgID))
	}
	client, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	if dataset == "" {
		dataset = "dev_" + serviceName
	}
	send := func(ctx context.Context, dataset string, events []axiom.Event) error {
		_, err := client.IngestEvents(ctx, dataset, events, ingest.SetTimestampField(zerolog.TimestampFieldName))
		return err
	}
	return startAxiomSink(dataset, every, send), nil
}

func startAxiomSink(dataset string, every time.Duration, send ingestFunc) *axiomSink {
	if every <= 0 {
		every = 10 * time.Second
	}
	s := &axiomSink{
		dataset: dataset,
		ingest:  send,
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.loop(every)
	return s
}

func (s *axiomSink) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.NoLevel, p)
}

func (s *axiomSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.InfoLevel {
		return len(p), nil
	}
	ev := axiom.Event{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = axiom.Event{"message": string(p), "level": "info"}
	}

	s.mu.Lock()
	if len(s.pending) >= axiomMaxPending {
		s.dropped++
		s.mu.Unlock()
		return len(p), nil
	}
	s.pending = append(s.pending, ev)
	full := len(s.pending) >= axiomBatchSize
	s.mu.Unlock()

	if full {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

func (s *axiomSink) loop(every time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			s.flush()
			return
		case <-ticker.C:
			s.flush()
		case <-s.kick:
			s.flush()
		}
	}
}

func (s *axiomSink) flush() {
	s.mu.Lock()
	batch := s.pending
	dropped := s.dropped
	s.pending, s.dropped = nil, 0
	s.mu.Unlock()

	if dropped > 0 {
		fmt.Fprintf(os.Stderr, "axiom: dropped %d log events\n", dropped)
	}
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), axiomTimeout)
	defer cancel()
	if err := s.ingest(ctx, s.dataset, batch); err != nil {
		fmt.Fprintf(os.Stderr, "axiom: ingest of %d events failed: %v\n", len(batch), err)
	}
}

// Close stops the flush loop after a final flush.
func (s *axiomSink) Close() {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
}
