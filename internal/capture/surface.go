// Package capture models the image capture and upload surface: a camera or
// file upload produces a preview, OCR fills in its text in the background, and
// the confirmed text is submitted to the conversation.
package capture

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"

	"homework-helper/backend/internal/conversation"
	"homework-helper/backend/ocr"
	"homework-helper/backend/pkg/logger"
)

// State is the surface's position in the capture flow
type State string

const (
	StateIdle       State = "idle"
	StateCameraOpen State = "camera-open"
	StatePreviewing State = "previewing"
)

var (
	// ErrInvalidTransition is returned for an operation the current state does not allow
	ErrInvalidTransition = stderrors.New("invalid capture transition")
	// ErrNotReady is returned by Confirm while text extraction is still running
	ErrNotReady = stderrors.New("text extraction in progress")
	// ErrEmptyText is returned by Confirm when there is no text to send
	ErrEmptyText = stderrors.New("no text to submit")
)

// Session is the live capture. Token identifies it; completions carrying an
// older token are dropped.
type Session struct {
	Token      uint64 `json:"token"`
	Image      string `json:"image"`
	Text       string `json:"text"`
	Extracting bool   `json:"extracting"`
	Ready      bool   `json:"ready"`
	Failed     bool   `json:"failed"`
}

// TextExtractor runs OCR over a data URI or base64 image
type TextExtractor interface {
	ExtractText(ctx context.Context, source string) (string, error)
}

// Submitter receives confirmed captures
type Submitter interface {
	SubmitImageText(ctx context.Context, imageRef, text string) (*conversation.Exchange, error)
}

// Surface is safe for concurrent use
type Surface struct {
	extractor TextExtractor
	submitter Submitter
	log       *logger.Logger

	mu        sync.Mutex
	state     State
	session   Session
	lastToken uint64
	cancel    context.CancelFunc
	settled   chan struct{}
}

// Option configures a Surface
type Option func(*Surface)

// WithLogger sets the surface's logger
func WithLogger(log *logger.Logger) Option {
	return func(s *Surface) { s.log = log }
}

// NewSurface creates an idle surface
func NewSurface(extractor TextExtractor, submitter Submitter, opts ...Option) *Surface {
	s := &Surface{
		extractor: extractor,
		submitter: submitter,
		log:       logger.Discard(),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state
func (s *Surface) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Session returns a copy of the live session; the zero Session when idle
func (s *Surface) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// OpenCamera moves idle to camera-open
func (s *Surface) OpenCamera() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrInvalidTransition
	}
	s.state = StateCameraOpen
	return nil
}

// CloseCamera moves camera-open back to idle
func (s *Surface) CloseCamera() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCameraOpen {
		return ErrInvalidTransition
	}
	s.state = StateIdle
	return nil
}

// Capture takes frame from the open camera into preview and starts OCR
func (s *Surface) Capture(frame string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCameraOpen {
		return 0, ErrInvalidTransition
	}
	return s.startLocked(frame), nil
}

// Upload previews a selected file and starts OCR. Uploading over an existing
// preview replaces it and cancels its extraction.
func (s *Surface) Upload(image string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCameraOpen {
		return 0, ErrInvalidTransition
	}
	return s.startLocked(image), nil
}

// Discard drops the preview and any partial text
func (s *Surface) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreviewing {
		return ErrInvalidTransition
	}
	s.resetLocked(StateIdle)
	return nil
}

// Retake drops the preview and reopens the camera
func (s *Surface) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreviewing {
		return ErrInvalidTransition
	}
	s.resetLocked(StateCameraOpen)
	return nil
}

// Confirm submits the preview with text, or with the extracted text when text
// is blank, and returns to idle. A failed submission, including ErrBusy, leaves
// the preview in place; the caller recovers by calling Confirm again or Discard.
func (s *Surface) Confirm(ctx context.Context, text string) (*conversation.Exchange, error) {
	s.mu.Lock()
	if s.state != StatePreviewing {
		s.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	if s.session.Extracting {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	session := s.session
	s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		text = session.Text
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	exchange, err := s.submitter.SubmitImageText(ctx, session.Image, text)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.session.Token == session.Token {
		s.resetLocked(StateIdle)
	}
	s.mu.Unlock()
	return exchange, nil
}

// Wait blocks until the live session's extraction settles or ctx is done
func (s *Surface) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		done := s.settled
		s.mu.Unlock()

		if done == nil {
			return nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}

		s.mu.Lock()
		current := s.settled
		s.mu.Unlock()
		if current == done {
			return nil
		}
	}
}

// Close cancels any running extraction and returns to idle
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(StateIdle)
}

func (s *Surface) startLocked(image string) uint64 {
	s.cancelLocked()

	s.lastToken++
	token := s.lastToken
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.state = StatePreviewing
	s.session = Session{Token: token, Image: image, Extracting: true}
	s.cancel = cancel
	s.settled = done

	go func() {
		defer close(done)
		defer cancel()
		text, err := s.extractor.ExtractText(ctx, image)
		s.finish(token, text, err)
	}()
	return token
}

func (s *Surface) finish(token uint64, text string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreviewing || s.session.Token != token {
		s.log.Debug("Dropping stale extraction result", "token", token)
		return
	}

	s.session.Extracting = false
	s.session.Ready = true
	if err != nil {
		s.log.Warn("Text extraction failed", "token", token, "error", err.Error())
		s.session.Text = ocr.FailureNotice
		s.session.Failed = true
		return
	}
	s.session.Text = text
}

func (s *Surface) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Surface) resetLocked(next State) {
	s.cancelLocked()
	s.state = next
	s.session = Session{}
	s.settled = nil
}
