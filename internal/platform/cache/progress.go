package cache

import (
	"context"
	"time"

	"rana-image-tool/internal/domain/batch"
	"rana-image-tool/internal/observability"
)

const publishTimeout = 2 * time.Second

// Progress event types
const (
	EventStart  = "start"
	EventFile   = "file"
	EventFinish = "finish"
)

// ProgressEvent is the JSON message published for every progress callback.
type ProgressEvent struct {
	Type    string         `json:"type"`
	Label   string         `json:"label,omitempty"`
	Total   int            `json:"total"`
	Done    int            `json:"done"`
	Path    string         `json:"path,omitempty"`
	Stage   string         `json:"stage,omitempty"`
	Error   string         `json:"error,omitempty"`
	Summary *batch.Summary `json:"summary,omitempty"`
	Time    time.Time      `json:"time"`
}

type messageStore interface {
	Publish(ctx context.Context, channel string, message any) (int64, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// ProgressPublisher mirrors batch progress onto a Redis channel so other
// processes can follow a long run. Publish errors are logged and never
// interrupt the batch.
type ProgressPublisher struct {
	store   messageStore
	channel string
	ttl     time.Duration
	logger  *observability.Logger
	now     func() time.Time

	label string
	total int
	done  int
}

// NewProgressPublisher creates a publisher on the given channel. The final
// summary is kept under SummaryKey(channel) for ttl.
func NewProgressPublisher(client *RedisClient, channel string, ttl time.Duration, logger *observability.Logger) *ProgressPublisher {
	return newProgressPublisher(client, channel, ttl, logger)
}

func newProgressPublisher(store messageStore, channel string, ttl time.Duration, logger *observability.Logger) *ProgressPublisher {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &ProgressPublisher{
		store:   store,
		channel: channel,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// SummaryKey is the key holding the last finished batch summary.
func SummaryKey(channel string) string {
	return channel + ":last_summary"
}

func (p *ProgressPublisher) Start(label string, total int) {
	p.label, p.total, p.done = label, total, 0
	p.publish(ProgressEvent{Type: EventStart, Label: label, Total: total})
}

func (p *ProgressPublisher) Increment(rec batch.CompletionRecord) {
	p.done++
	ev := ProgressEvent{
		Type:  EventFile,
		Label: p.label,
		Total: p.total,
		Done:  p.done,
		Path:  rec.Path,
	}
	if rec.Err != nil {
		ev.Stage = rec.Err.Stage.String()
		ev.Error = rec.Err.Error()
	}
	p.publish(ev)
}

func (p *ProgressPublisher) Finish(summary *batch.Summary) {
	p.publish(ProgressEvent{
		Type:    EventFinish,
		Label:   summary.Label,
		Total:   summary.Total,
		Done:    p.done,
		Summary: summary,
	})

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.store.Set(ctx, SummaryKey(p.channel), summary, p.ttl); err != nil {
		p.logger.Error(ctx).Err(err).
			Str("key", SummaryKey(p.channel)).
			Msg("Failed to store batch summary")
	}
}

func (p *ProgressPublisher) publish(ev ProgressEvent) {
	ev.Time = p.now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if _, err := p.store.Publish(ctx, p.channel, ev); err != nil {
		p.logger.Error(ctx).Err(err).
			Str("channel", p.channel).
			Str("event", ev.Type).
			Msg("Failed to publish progress event")
	}
}
