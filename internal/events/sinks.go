package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alirezaght/arazzo/internal/store"
)

// StoreSink persists every event to the durable run event log. This is the
// sink that feeds the events CLI subcommand and the serve API's event
// listing; it should always be present in a production composite.
type StoreSink struct {
	Store store.Store
}

func NewStoreSink(s store.Store) *StoreSink { return &StoreSink{Store: s} }

func (s *StoreSink) Emit(ctx context.Context, ev Event) error {
	payload, err := Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.Store.AppendEvent(ctx, ev.RunID, string(ev.Type), payload)
	return err
}

// StdoutSink writes each event as a structured log line, via the same
// leveled logger used for the rest of the executor's output.
type StdoutSink struct {
	logger *log.Logger
}

func NewStdoutSink(logger *log.Logger) *StdoutSink {
	if logger == nil {
		logger = log.Default()
	}
	return &StdoutSink{logger: logger}
}

func (s *StdoutSink) Emit(_ context.Context, ev Event) error {
	s.logger.Info(string(ev.Type), "run_id", ev.RunID, "payload", ev.Payload)
	return nil
}

// webhookBodyCap is the spec.md §4.11 body size cap for a webhook POST.
const webhookBodyCap = 1 << 20

// WebhookSink POSTs only run.finished events as JSON to a fixed URL, with a
// 5-second timeout and a 1 MiB body cap; every other event is forwarded
// only to the wrapped Base sink, never over the wire. Failures are
// returned to the caller (typically a Composite) rather than retried
// internally.
type WebhookSink struct {
	URL    string
	Base   Sink
	Client *http.Client
}

func NewWebhookSink(url string, base Sink) *WebhookSink {
	return &WebhookSink{URL: url, Base: base, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (s *WebhookSink) Emit(ctx context.Context, ev Event) error {
	if ev.Type != RunFinished {
		if s.Base != nil {
			return s.Base.Emit(ctx, ev)
		}
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if len(body) > webhookBodyCap {
		return fmt.Errorf("webhook sink: payload of %d bytes exceeds the %d byte cap", len(body), webhookBodyCap)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook sink: unexpected status %d", resp.StatusCode)
	}
	if s.Base != nil {
		return s.Base.Emit(ctx, ev)
	}
	return nil
}

// ProgressSink hands every event to the OnEvent callback, letting a caller
// observe live progress without depending on any particular sink wiring.
type ProgressSink struct {
	OnEvent func(Event)
}

func NewProgressSink(onEvent func(Event)) *ProgressSink {
	return &ProgressSink{OnEvent: onEvent}
}

func (s *ProgressSink) Emit(_ context.Context, ev Event) error {
	if s.OnEvent != nil {
		s.OnEvent(ev)
	}
	return nil
}
