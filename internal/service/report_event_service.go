package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const reportEventBufferSize = 16

// ReportEvent announces a report state change.
type ReportEvent struct {
	ReportID string    `json:"report_id"`
	Status   string    `json:"status"`
	Kind     string    `json:"kind"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

// Report event kinds.
const (
	EventStatusChanged   = "status_changed"
	EventQuestionsReady  = "questions_ready"
	EventDeepDiveReady   = "deep_dive_ready"
	EventAutoGraded      = "auto_graded"
	EventDeepAnalysisRun = "deep_analysis_updated"
)

// ReportEventPublisher receives report events from background work.
type ReportEventPublisher interface {
	Publish(ctx context.Context, event ReportEvent)
}

// ReportEventService fans report events out to local websocket subscribers and
// to other API nodes over Redis pub/sub and NATS.
type ReportEventService interface {
	ReportEventPublisher
	Subscribe(reportID string) (<-chan ReportEvent, func())
	Start(ctx context.Context)
}

type reportEventService struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *reportEventBroker
	nodeID       string
}

type reportEventEnvelope struct {
	Source string      `json:"source"`
	Event  ReportEvent `json:"event"`
}

type reportEventBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan ReportEvent]struct{}
}

// NewReportEventService constructs the event service. Either transport may be nil.
func NewReportEventService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) ReportEventService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &reportEventService{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "report_event_service").Logger(),
		broker: &reportEventBroker{
			subscribers: make(map[string]map[chan ReportEvent]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *reportEventService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *reportEventService) Publish(ctx context.Context, event ReportEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if event.Kind == "" {
		event.Kind = EventStatusChanged
	}

	s.broker.broadcast(event)

	payload, err := json.Marshal(reportEventEnvelope{Source: s.nodeID, Event: event})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode report event")
		return
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			s.logger.Warn().Err(err).Str("report_id", event.ReportID).Msg("failed to publish report event to redis")
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			s.logger.Warn().Err(err).Str("report_id", event.ReportID).Msg("failed to publish report event to nats")
		}
	}
}

func (s *reportEventService) Subscribe(reportID string) (<-chan ReportEvent, func()) {
	channel := make(chan ReportEvent, reportEventBufferSize)
	s.broker.subscribe(reportID, channel)

	var once sync.Once
	cleanup := func() {
		once.Do(func() { s.broker.unsubscribe(reportID, channel) })
	}
	return channel, cleanup
}

func (s *reportEventService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("report event redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

func (s *reportEventService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats report events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain report event nats subscription")
		}
	}()
}

func (s *reportEventService) handleEnvelope(payload []byte) {
	var envelope reportEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid report event payload")
		return
	}
	if envelope.Source == s.nodeID || envelope.Event.ReportID == "" {
		return
	}
	s.broker.broadcast(envelope.Event)
}

func (b *reportEventBroker) subscribe(reportID string, ch chan ReportEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[reportID]; !exists {
		b.subscribers[reportID] = make(map[chan ReportEvent]struct{})
	}
	b.subscribers[reportID][ch] = struct{}{}
}

func (b *reportEventBroker) unsubscribe(reportID string, ch chan ReportEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[reportID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, reportID)
		}
	}
}

func (b *reportEventBroker) broadcast(event ReportEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.ReportID] {
		select {
		case ch <- event:
		default:
		}
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, ReportEvent) {}

func publisherOrNoop(p ReportEventPublisher) ReportEventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}
