package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/daginfo"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/logger"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

const (
	// NATS stream names
	TriggersStream = "DAG_TRIGGERS"
	ResultsStream  = "DAG_RESULTS"

	// Subject names
	TriggersSubject = "dags.triggered"
	ResultsSubject  = "dags.results"
)

// Dispatcher hands a triggered run to whatever executes DAGs
type Dispatcher interface {
	Dispatch(ctx context.Context, trigger *daginfo.Trigger) error
}

// DispatcherFunc adapts a function to Dispatcher
type DispatcherFunc func(ctx context.Context, trigger *daginfo.Trigger) error

func (f DispatcherFunc) Dispatch(ctx context.Context, trigger *daginfo.Trigger) error {
	return f(ctx, trigger)
}

// LogDispatcher only logs triggers. Runs must be reported back through the API
type LogDispatcher struct {
	Log *logger.Logger
}

func (d LogDispatcher) Dispatch(ctx context.Context, trigger *daginfo.Trigger) error {
	log := d.Log
	if log == nil {
		log = logger.NewNop()
	}
	log.InfoContext(ctx, "Dag run dispatched",
		logger.StringField("run_id", trigger.RunID),
		logger.StringField("dag_id", trigger.DagInfo.DagID),
	)
	return nil
}

// TriggerMessage is published for every triggered run
type TriggerMessage struct {
	RunID         string `json:"run_id"`
	DagInfoID     int64  `json:"dag_info_id"`
	DagID         string `json:"dag_id"`
	DagName       string `json:"dag_name"`
	TriggeredAt   string `json:"triggered_at"`
	NextStartTime string `json:"next_start_time"`
}

// NewTriggerMessage builds the wire message for a trigger
func NewTriggerMessage(t *daginfo.Trigger) TriggerMessage {
	return TriggerMessage{
		RunID:         t.RunID,
		DagInfoID:     t.DagInfo.ID,
		DagID:         t.DagInfo.DagID,
		DagName:       t.DagInfo.DagName,
		TriggeredAt:   models.FormatTime(t.TriggeredAt),
		NextStartTime: models.FormatTime(t.NextStartTime),
	}
}

// ResultMessage is published by executors when a run finishes
type ResultMessage struct {
	RunID        string `json:"run_id"`
	DagInfoID    int64  `json:"dag_info_id"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NATSDispatcher publishes triggers to a JetStream work queue and applies
// run results reported back by executors
type NATSDispatcher struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	log       *logger.Logger
	resultSub *nats.Subscription

	mu sync.Mutex
	// runs holds the last run id published per dag info id
	runs map[int64]string
}

// NewNATSDispatcher connects to NATS and creates the trigger and result streams
func NewNATSDispatcher(natsURL string, log *logger.Logger) (*NATSDispatcher, error) {
	if log == nil {
		log = logger.NewNop()
	}

	nc, err := nats.Connect(natsURL, nats.Name("dagsched"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	d := &NATSDispatcher{nc: nc, js: js, log: log.Named("nats"), runs: make(map[int64]string)}
	if err := d.initStreams(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize streams: %w", err)
	}
	return d, nil
}

// initStreams initializes NATS JetStream streams
func (d *NATSDispatcher) initStreams() error {
	_, err := d.js.AddStream(&nats.StreamConfig{
		Name:      TriggersStream,
		Subjects:  []string{TriggersSubject},
		Retention: nats.WorkQueuePolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create triggers stream: %w", err)
	}

	_, err = d.js.AddStream(&nats.StreamConfig{
		Name:      ResultsStream,
		Subjects:  []string{ResultsSubject},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create results stream: %w", err)
	}
	return nil
}

// Dispatch publishes the trigger and waits for the JetStream ack
func (d *NATSDispatcher) Dispatch(ctx context.Context, trigger *daginfo.Trigger) error {
	data, err := json.Marshal(NewTriggerMessage(trigger))
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}

	// The run id doubles as the dedup id
	if _, err := d.js.Publish(TriggersSubject, data, nats.Context(ctx), nats.MsgId(trigger.RunID)); err != nil {
		return fmt.Errorf("failed to publish trigger: %w", err)
	}
	d.trackRun(trigger.DagInfo.ID, trigger.RunID)
	return nil
}

func (d *NATSDispatcher) trackRun(id int64, runID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runs == nil {
		d.runs = make(map[int64]string)
	}
	d.runs[id] = runID
}

// settleRun reports whether a result for runID belongs to the current run
// of id, forgetting the run when it does. Runs this process never published
// cannot be checked and are accepted
func (d *NATSDispatcher) settleRun(id int64, runID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.runs[id]
	if !ok {
		return true
	}
	if current != runID {
		return false
	}
	delete(d.runs, id)
	return true
}

// ResultHandler applies run outcomes
type ResultHandler interface {
	MarkSucceeded(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
}

// ListenResults subscribes to run results and applies them through h
func (d *NATSDispatcher) ListenResults(h ResultHandler) error {
	sub, err := d.js.Subscribe(ResultsSubject, func(msg *nats.Msg) {
		d.handleResult(h, msg)
	}, nats.Durable("dagsched-results"), nats.ManualAck())
	if err != nil {
		return fmt.Errorf("failed to subscribe to results: %w", err)
	}
	d.resultSub = sub
	return nil
}

// ackKind is how a consumed result message is settled
type ackKind int

const (
	ackDone ackKind = iota
	ackRetry
	ackDrop
)

func (d *NATSDispatcher) handleResult(h ResultHandler, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result ResultMessage
	action := ackDrop
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		d.log.ErrorContext(ctx, "Discarding malformed run result", logger.ErrorField(err))
	} else {
		action = d.applyResult(ctx, h, result)
	}

	var err error
	switch action {
	case ackDone:
		err = msg.Ack()
	case ackRetry:
		err = msg.Nak()
	case ackDrop:
		err = msg.Term()
	}
	if err != nil {
		d.log.WarnContext(ctx, "Failed to settle run result message",
			logger.StringField("run_id", result.RunID), logger.ErrorField(err))
	}
}

// applyResult applies one run outcome and decides how to settle its message.
// Results of runs superseded by a newer trigger are dropped
func (d *NATSDispatcher) applyResult(ctx context.Context, h ResultHandler, result ResultMessage) ackKind {
	if !d.settleRun(result.DagInfoID, result.RunID) {
		d.log.WarnContext(ctx, "Discarding result of a superseded run",
			logger.Int64Field("id", result.DagInfoID), logger.StringField("run_id", result.RunID))
		return ackDrop
	}

	var err error
	if result.Success {
		err = h.MarkSucceeded(ctx, result.DagInfoID)
	} else {
		err = h.MarkFailed(ctx, result.DagInfoID)
	}

	switch {
	case err == nil:
		return ackDone
	case errors.Is(err, daginfo.ErrStatusConflict), errors.Is(err, storage.ErrNotFound):
		// Terminated, reset or deleted while the run was in flight
		d.log.WarnContext(ctx, "Run result does not match dag status",
			logger.StringField("run_id", result.RunID), logger.ErrorField(err))
		return ackDone
	default:
		d.log.ErrorContext(ctx, "Failed to apply run result",
			logger.StringField("run_id", result.RunID), logger.ErrorField(err))
		d.trackRun(result.DagInfoID, result.RunID)
		return ackRetry
	}
}

// Close unsubscribes and drains the connection
func (d *NATSDispatcher) Close() error {
	if d.resultSub != nil {
		d.resultSub.Unsubscribe()
	}
	return d.nc.Drain()
}
