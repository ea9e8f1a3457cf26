package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes each event to a subject derived from the run id,
// mirroring the teacher's durable-dispatch subject layout
// (workflows.<runId>.<stepId>) but for out-of-band event fan-out rather than
// step execution itself.
type NATSSink struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSSink wires a sink over an already-connected NATS connection.
func NewNATSSink(conn *nats.Conn, subjectPrefix string) *NATSSink {
	if subjectPrefix == "" {
		subjectPrefix = "arazzo.events"
	}
	return &NATSSink{conn: conn, subjectPrefix: subjectPrefix}
}

func (s *NATSSink) Emit(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s", s.subjectPrefix, ev.RunID)
	return s.conn.Publish(subject, data)
}
