package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/domain/match"
	"goalsync/internal/errs"
	"goalsync/internal/ports"
)

// TransitionMessage is the JSON body published for every lifecycle change.
type TransitionMessage struct {
	EventID             string      `json:"event_id"`
	From                match.State `json:"from"`
	To                  match.State `json:"to"`
	Kind                string      `json:"kind"`
	Source              string      `json:"source"`
	ObservedAt          int64       `json:"observed_at"`
	ElapsedMinute       *int        `json:"elapsed_minute,omitempty"`
	MinuteText          string      `json:"minute_text,omitempty"`
	Score               match.Score `json:"score"`
	ConfirmedFinishedAt *int64      `json:"confirmed_finished_at,omitempty"`
}

func NewTransitionMessage(transition match.Transition, record match.EventRecord) TransitionMessage {
	minuteText := ""
	if record.ElapsedMinuteText != nil {
		minuteText = *record.ElapsedMinuteText
	}
	return TransitionMessage{
		EventID:             transition.EventID,
		From:                transition.From,
		To:                  transition.To,
		Kind:                string(transition.Kind),
		Source:              transition.Source,
		ObservedAt:          transition.ObservedAt,
		ElapsedMinute:       record.ElapsedMinute,
		MinuteText:          minuteText,
		Score:               record.Score,
		ConfirmedFinishedAt: record.ConfirmedFinishedAt,
	}
}

// NATS publishes transitions on "<prefix>.<event id>".
type NATS struct {
	conn          *nats.Conn
	subjectPrefix string
}

var _ ports.TransitionPublisher = (*NATS)(nil)

func ConnectNATS(ctx context.Context, url string, subjectPrefix string) (*NATS, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "publisher.nats"))
	conn, err := nats.Connect(
		strings.TrimSpace(url),
		nats.Name("goalsync"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn(logCtx, "nats disconnected", slog.Any("err", errs.Loggable(err)))
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logging.Info(logCtx, "nats reconnected", slog.String("url", conn.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errs.Wrap(err, "connect nats")
	}
	return NewNATS(conn, subjectPrefix), nil
}

func NewNATS(conn *nats.Conn, subjectPrefix string) *NATS {
	prefix := strings.Trim(strings.TrimSpace(subjectPrefix), ".")
	if prefix == "" {
		prefix = "goalsync.transitions"
	}
	return &NATS{conn: conn, subjectPrefix: prefix}
}

func (p *NATS) Subject(eventID string) string {
	return p.subjectPrefix + "." + eventID
}

func (p *NATS) PublishTransition(ctx context.Context, transition match.Transition, record match.EventRecord) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	payload, err := json.Marshal(NewTransitionMessage(transition, record))
	if err != nil {
		return errs.Wrap(err, "marshal transition")
	}
	if err := p.conn.Publish(p.Subject(transition.EventID), payload); err != nil {
		return errs.Wrapf(err, "publish transition %q", transition.EventID)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATS) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	err := p.conn.Drain()
	if err != nil {
		p.conn.Close()
	}
	return errs.Wrap(err, "drain nats")
}
