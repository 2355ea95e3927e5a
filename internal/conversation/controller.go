package conversation

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"homework-helper/backend/pkg/errors"
	"homework-helper/backend/pkg/logger"
	"homework-helper/backend/pkg/observability"

	"github.com/google/uuid"
)

// Assistant messages substituted when generation fails
const (
	TextFallback  = "Sorry, I couldn't generate an answer. Please try again."
	ImageFallback = "Sorry, I couldn't analyze this image. Please try again."
)

// ErrBusy is returned when a submission arrives while another is in flight
var ErrBusy = stderrors.New("conversation is busy")

// Generator produces an answer for a question and an optional base64 image
type Generator interface {
	GenerateAnswer(ctx context.Context, content, imageBase64 string) (string, error)
}

// Exchange is the pair of messages a submission appended
type Exchange struct {
	User      Message `json:"user"`
	Assistant Message `json:"assistant"`
	// Fallback is set when Assistant carries a fallback notice instead of an answer
	Fallback bool `json:"fallback"`
}

// Controller runs the submission pipeline for one conversation: append the user
// message, ask the generator, append the answer or a fallback.
type Controller struct {
	store     Store
	generator Generator
	log       *logger.Logger
	metrics   *observability.PipelineMetrics
	now       func() time.Time
	newID     func() string

	busy atomic.Bool

	mu            sync.Mutex
	seeded        bool
	lastTimestamp int64
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller's logger
func WithLogger(log *logger.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics records submissions on m
func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock replaces the wall clock used for timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a controller over store and generator
func NewController(store Store, generator Generator, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		generator: generator,
		log:       logger.Discard(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitText asks a typed question. Empty or whitespace-only text is a no-op and
// returns a nil Exchange.
func (c *Controller) SubmitText(ctx context.Context, text string) (*Exchange, error) {
	return c.submit(ctx, "text", text, "", TextFallback)
}

// SubmitImageText asks a question derived from an image. imageRef is kept on the
// user message and sent to the generator alongside text.
func (c *Controller) SubmitImageText(ctx context.Context, imageRef, text string) (*Exchange, error) {
	return c.submit(ctx, "image", text, imageRef, ImageFallback)
}

func (c *Controller) submit(ctx context.Context, path, text, imageRef, fallback string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	if !c.busy.CompareAndSwap(false, true) {
		c.metrics.RecordSubmission(ctx, path, observability.OutcomeRejected)
		return nil, ErrBusy
	}
	defer c.busy.Store(false)

	log := logger.FromContext(ctx, c.log)

	user := Message{
		ID:        c.newID(),
		Content:   text,
		Role:      RoleUser,
		Timestamp: c.nextTimestamp(ctx),
		ImageURL:  imageRef,
	}
	if err := c.store.Append(ctx, user); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	exchange := &Exchange{User: user}
	outcome := observability.OutcomeSuccess

	answer, err := c.generator.GenerateAnswer(ctx, text, imageRef)
	if err != nil {
		kind := "generation_failure"
		if stderrors.Is(err, errors.ErrTransportTimeout) {
			kind = "transport_timeout"
		}
		log.Warn("Answer generation failed, appending fallback",
			"path", path,
			"kind", kind,
			"error", err.Error(),
		)
		answer = fallback
		exchange.Fallback = true
		outcome = observability.OutcomeFallback
	}

	exchange.Assistant = Message{
		ID:        c.newID(),
		Content:   answer,
		Role:      RoleAssistant,
		Timestamp: c.nextTimestamp(ctx),
	}

	// The user turn is already in the log, so the reply lands even if the caller went away
	if err := c.store.Append(context.WithoutCancel(ctx), exchange.Assistant); err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}

	c.metrics.RecordSubmission(ctx, path, outcome)
	return exchange, nil
}

// nextTimestamp returns the wall clock in ms, never earlier than the last one issued
func (c *Controller) nextTimestamp(ctx context.Context) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.seeded {
		// A shared store may already hold messages from an earlier process
		if msgs, err := c.store.All(ctx); err == nil {
			c.seeded = true
			if n := len(msgs); n > 0 && msgs[n-1].Timestamp > c.lastTimestamp {
				c.lastTimestamp = msgs[n-1].Timestamp
			}
		}
	}

	ts := c.now().UnixMilli()
	if ts < c.lastTimestamp {
		ts = c.lastTimestamp
	}
	c.lastTimestamp = ts
	return ts
}

// ClearConversation empties the store
func (c *Controller) ClearConversation(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

// Messages returns the conversation, oldest first
func (c *Controller) Messages(ctx context.Context) ([]Message, error) {
	return c.store.All(ctx)
}

// Busy reports whether a submission is in flight
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Subscribe streams store changes when the backing store supports it
func (c *Controller) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	sub, ok := c.store.(Subscriber)
	if !ok {
		return nil, nil, ErrSubscribeUnsupported
	}
	return sub.Subscribe(ctx)
}
