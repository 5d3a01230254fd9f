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

	"github.com/noah-isme/sciencefair-api/internal/dto"
	"github.com/noah-isme/sciencefair-api/internal/models"
	"github.com/noah-isme/sciencefair-api/internal/observability"
	"github.com/noah-isme/sciencefair-api/internal/repository"
)

// FormSubscriptionFilter selects the live query a subscriber follows. Exactly one field is set.
type FormSubscriptionFilter struct {
	ProjectID string `json:"project_id,omitempty"`
	StudentID string `json:"student_id,omitempty"`
	FormID    string `json:"form_id,omitempty"`
}

func (f FormSubscriptionFilter) normalized() (FormSubscriptionFilter, error) {
	normalized := FormSubscriptionFilter{
		ProjectID: strings.TrimSpace(f.ProjectID),
		StudentID: strings.TrimSpace(f.StudentID),
		FormID:    strings.TrimSpace(f.FormID),
	}

	set := 0
	for _, value := range []string{normalized.ProjectID, normalized.StudentID, normalized.FormID} {
		if value != "" {
			set++
		}
	}
	if set != 1 {
		return FormSubscriptionFilter{}, ErrInvalidSubscription
	}

	return normalized, nil
}

func (f FormSubscriptionFilter) matches(change formChange) bool {
	switch {
	case f.ProjectID != "":
		return f.ProjectID == change.ProjectID
	case f.StudentID != "":
		return f.StudentID == change.StudentID
	default:
		return f.FormID == change.FormID
	}
}

func (f FormSubscriptionFilter) repositoryFilter() repository.FormFilter {
	filter := repository.FormFilter{}
	switch {
	case f.ProjectID != "":
		filter.ProjectID = &f.ProjectID
	case f.StudentID != "":
		filter.StudentID = &f.StudentID
	default:
		filter.FormID = &f.FormID
	}
	return filter
}

// FormSnapshot is the complete result set of a live query at one point in time.
type FormSnapshot struct {
	Filter FormSubscriptionFilter       `json:"filter"`
	Forms  []dto.FormSubmissionResponse `json:"forms"`
	SentAt time.Time                    `json:"sent_at"`
}

// FormHub serves live form queries and fans accepted mutations out to other nodes.
type FormHub interface {
	FormChangeListener
	Subscribe(ctx context.Context, filter FormSubscriptionFilter) (<-chan FormSnapshot, func(), error)
	Start(ctx context.Context)
}

// formChange identifies a mutated form by the keys subscriptions filter on.
type formChange struct {
	FormID    string `json:"form_id"`
	ProjectID string `json:"project_id"`
	StudentID string `json:"student_id"`
}

type formChangeEvent struct {
	Source string     `json:"source"`
	Change formChange `json:"change"`
	SentAt time.Time  `json:"sent_at"`
}

type formSubscription struct {
	filter FormSubscriptionFilter
	mu     sync.Mutex
	ch     chan FormSnapshot
	closed bool
}

type formHub struct {
	forms       repository.FormRepository
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	nodeID      string
	now         func() time.Time

	mu            sync.RWMutex
	subscriptions map[*formSubscription]struct{}

	// refreshMu serialises refreshes so a subscriber never receives an older snapshot after a newer one.
	refreshMu sync.Mutex
}

// NewFormHub constructs the live query hub. redisClient and natsConn are optional.
func NewFormHub(forms repository.FormRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) FormHub {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":forms"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".forms"
	}

	return &formHub{
		forms:         forms,
		redis:         redisClient,
		redisStream:   stream,
		nats:          natsConn,
		natsSubject:   subject,
		logger:        logger.With().Str("component", "form_hub").Logger(),
		nodeID:        uuid.NewString(),
		now:           time.Now,
		subscriptions: make(map[*formSubscription]struct{}),
	}
}

func (h *formHub) Start(ctx context.Context) {
	if h.redis != nil && h.redisStream != "" {
		go h.consumeRedis(ctx)
	}
	if h.nats != nil && h.natsSubject != "" {
		go h.consumeNATS(ctx)
	}
}

// Subscribe registers a live query. The first snapshot is delivered immediately; later
// ones follow each accepted mutation that touches the filter. A slow reader only ever
// sees the latest snapshot.
func (h *formHub) Subscribe(ctx context.Context, filter FormSubscriptionFilter) (<-chan FormSnapshot, func(), error) {
	normalized, err := filter.normalized()
	if err != nil {
		return nil, nil, err
	}

	sub := &formSubscription{
		filter: normalized,
		ch:     make(chan FormSnapshot, 1),
	}

	h.mu.Lock()
	h.subscriptions[sub] = struct{}{}
	h.mu.Unlock()
	observability.FormSubscriptionsActive().Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscriptions, sub)
			h.mu.Unlock()
			sub.close()
			observability.FormSubscriptionsActive().Dec()
		})
	}

	h.refreshMu.Lock()
	snapshot, err := h.snapshot(ctx, normalized)
	if err == nil {
		sub.deliver(snapshot)
	}
	h.refreshMu.Unlock()
	if err != nil {
		cancel()
		return nil, nil, err
	}

	return sub.ch, cancel, nil
}

// FormChanged refreshes local subscribers and announces the change to other nodes.
func (h *formHub) FormChanged(ctx context.Context, form models.FormSubmission) {
	change := formChange{
		FormID:    form.ID,
		ProjectID: form.ProjectContext.ProjectID,
		StudentID: form.StudentID,
	}

	h.refresh(ctx, change)
	if err := h.publish(ctx, change); err != nil {
		h.logger.Warn().Err(err).Str("form_id", form.ID).Msg("failed to publish form change to broker")
	}
}

func (h *formHub) refresh(ctx context.Context, change formChange) {
	h.mu.RLock()
	groups := map[FormSubscriptionFilter][]*formSubscription{}
	for sub := range h.subscriptions {
		if sub.filter.matches(change) {
			groups[sub.filter] = append(groups[sub.filter], sub)
		}
	}
	h.mu.RUnlock()

	if len(groups) == 0 {
		return
	}

	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	for filter, subs := range groups {
		snapshot, err := h.snapshot(ctx, filter)
		if err != nil {
			h.logger.Error().Err(err).Str("form_id", change.FormID).Msg("failed to refresh live form query")
			continue
		}
		for _, sub := range subs {
			sub.deliver(snapshot)
		}
	}
}

func (h *formHub) snapshot(ctx context.Context, filter FormSubscriptionFilter) (FormSnapshot, error) {
	forms, err := h.forms.List(ctx, filter.repositoryFilter())
	if err != nil {
		return FormSnapshot{}, storeError("live form query", err, ErrFormNotFound)
	}

	return FormSnapshot{
		Filter: filter,
		Forms:  dto.NewFormSubmissionResponseSlice(forms),
		SentAt: h.now().UTC(),
	}, nil
}

func (h *formHub) publish(ctx context.Context, change formChange) error {
	if (h.redis == nil || h.redisStream == "") && (h.nats == nil || h.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(formChangeEvent{
		Source: h.nodeID,
		Change: change,
		SentAt: h.now().UTC(),
	})
	if err != nil {
		return err
	}

	if h.redis != nil && h.redisStream != "" {
		if err := h.redis.Publish(ctx, h.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if h.nats != nil && h.natsSubject != "" {
		if err := h.nats.Publish(h.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (h *formHub) consumeRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, h.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			h.logger.Error().Err(err).Msg("form change redis subscription closed")
			return
		}
		h.handleEvent(ctx, []byte(msg.Payload))
	}
}

func (h *formHub) consumeNATS(ctx context.Context) {
	// Every node must see every change, so this is a plain subscription rather than a queue group.
	sub, err := h.nats.Subscribe(h.natsSubject, func(msg *nats.Msg) {
		h.handleEvent(ctx, msg.Data)
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to subscribe to nats form subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			h.logger.Warn().Err(err).Msg("failed to drain form nats subscription")
		}
	}()
}

func (h *formHub) handleEvent(ctx context.Context, payload []byte) {
	var event formChangeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Warn().Err(err).Msg("invalid form change payload")
		return
	}

	if event.Source == h.nodeID || event.Change.FormID == "" {
		return
	}

	h.refresh(ctx, event.Change)
}

func (s *formSubscription) deliver(snapshot FormSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- snapshot:
		return
	default:
	}

	// Drop the stale snapshot nobody has read yet.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- snapshot:
	default:
	}
}

func (s *formSubscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
