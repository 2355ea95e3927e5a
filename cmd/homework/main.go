// Command homework is a terminal client for a running homework relay. It asks
// typed questions, runs photos of worksheets through OCR before asking about
// them, and can follow a conversation stream.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"homework-helper/backend/ai"
	"homework-helper/backend/internal/capture"
	"homework-helper/backend/internal/conversation"
	"homework-helper/backend/internal/models"
	"homework-helper/backend/ocr"
	"homework-helper/backend/pkg/datauri"
	"homework-helper/backend/pkg/logger"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/websocket"
)

func main() {
	serverPtr := flag.String("server", envOr("HOMEWORK_SERVER", "http://localhost:8081"), "Relay base URL")
	userPtr := flag.String("user", "", "Save exchanges to the relay's message history under this user id")
	askPtr := flag.String("ask", "", "Ask one question and exit")
	imagePtr := flag.String("image", "", "Ask about a JPEG or PNG image and exit")
	textPtr := flag.String("text", "", "Question text sent with -image, replacing the extracted text")
	watchPtr := flag.String("watch", "", "Print the live stream of a server-side conversation")
	timeoutPtr := flag.Duration("timeout", 60*time.Second, "Timeout for relay calls")
	verbosePtr := flag.Bool("v", false, "Log pipeline details to stderr")
	flag.Parse()

	logConfig := logger.DefaultConfig()
	logConfig.JSON = false
	logConfig.Level = string(logger.LevelError)
	if *verbosePtr {
		logConfig.Level = string(logger.LevelDebug)
	}
	log := logger.New(logConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := newClient(*serverPtr, *userPtr, *timeoutPtr, log, os.Stdout)
	defer c.surface.Close()

	var err error
	switch {
	case *watchPtr != "":
		err = c.watch(ctx, *watchPtr)
	case *askPtr != "":
		err = c.ask(ctx, *askPtr)
	case *imagePtr != "":
		if _, err = c.loadImage(ctx, *imagePtr); err == nil {
			err = c.sendImage(ctx, *textPtr)
		}
	default:
		err = c.repl(ctx, os.Stdin)
	}
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// client drives the conversation pipeline against a relay
type client struct {
	server     string
	user       string
	http       *http.Client
	controller *conversation.Controller
	surface    *capture.Surface
	out        io.Writer
	log        *logger.Logger
}

func newClient(server, user string, timeout time.Duration, log *logger.Logger, out io.Writer) *client {
	server = strings.TrimRight(server, "/")

	generator := ai.NewRelayClient(server, timeout)
	extractor := ocr.NewExtractor(ocr.NewRemoteEngine(server, timeout), ocr.WithLogger(log))
	controller := conversation.NewController(conversation.NewMemoryStore(), generator, conversation.WithLogger(log))

	return &client{
		server:     server,
		user:       user,
		http:       &http.Client{Timeout: timeout},
		controller: controller,
		surface:    capture.NewSurface(extractor, controller, capture.WithLogger(log)),
		out:        out,
		log:        log,
	}
}

// ask submits a typed question
func (c *client) ask(ctx context.Context, text string) error {
	exchange, err := c.controller.SubmitText(ctx, text)
	if err != nil {
		return err
	}
	return c.report(ctx, exchange)
}

// loadImage previews the image at path and waits for its text
func (c *client) loadImage(ctx context.Context, path string) (capture.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return capture.Session{}, fmt.Errorf("error reading image: %w", err)
	}

	mtype := mimetype.Detect(data)
	if !mtype.Is("image/jpeg") && !mtype.Is("image/png") {
		return capture.Session{}, fmt.Errorf("%s is %s, only JPEG and PNG images are supported", path, mtype.String())
	}

	if _, err := c.surface.Upload(datauri.Encode(mtype.String(), data)); err != nil {
		return capture.Session{}, err
	}
	fmt.Fprintln(c.out, "Extracting text...")
	if err := c.surface.Wait(ctx); err != nil {
		return capture.Session{}, err
	}

	session := c.surface.Session()
	fmt.Fprintf(c.out, "Extracted text:\n%s\n", session.Text)
	return session, nil
}

// sendImage confirms the previewed image; empty text sends the extracted text
func (c *client) sendImage(ctx context.Context, text string) error {
	exchange, err := c.surface.Confirm(ctx, text)
	if err != nil {
		return err
	}
	return c.report(ctx, exchange)
}

func (c *client) report(ctx context.Context, exchange *conversation.Exchange) error {
	if exchange == nil {
		fmt.Fprintln(c.out, "Nothing to send.")
		return nil
	}
	fmt.Fprintf(c.out, "\n%s\n\n", exchange.Assistant.Content)

	if c.user == "" {
		return nil
	}
	for _, msg := range []conversation.Message{exchange.User, exchange.Assistant} {
		if err := c.saveMessage(ctx, msg); err != nil {
			// The answer was already shown; history is best effort
			c.log.LogError(err, "Failed to save message", "role", string(msg.Role))
		}
	}
	return nil
}

// saveMessage posts msg to the relay's message history
func (c *client) saveMessage(ctx context.Context, msg conversation.Message) error {
	req := models.CreateMessageRequest{
		Content: msg.Content,
		Role:    string(msg.Role),
		UserID:  c.user,
	}
	if msg.ImageURL != "" {
		req.ImageURL = &msg.ImageURL
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("error marshaling message: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+"/api/messages", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("error response: %s, status: %d", string(bodyBytes), resp.StatusCode)
	}
	return nil
}

// history returns the saved messages for the client's user
func (c *client) history(ctx context.Context) ([]models.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.server+"/api/messages?"+url.Values{"userId": {c.user}}.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("error response: %s, status: %d", string(bodyBytes), resp.StatusCode)
	}

	var messages []models.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return messages, nil
}

const replHelp = `Type a question and press Enter. Commands:
  /image <path>  extract text from an image, then Enter sends it or a new line replaces it
  /discard       drop the previewed image
  /history       show this session, or the saved history with -user
  /clear         start a new conversation
  /quit          exit`

// repl reads questions and commands from in until EOF or /quit
func (c *client) repl(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(c.out, replHelp)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for {
		if c.surface.State() == capture.StatePreviewing {
			fmt.Fprint(c.out, "send> ")
		} else {
			fmt.Fprint(c.out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		if err := c.handleLine(ctx, line); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

var errQuit = errors.New("quit")

func (c *client) handleLine(ctx context.Context, line string) error {
	command, arg, _ := strings.Cut(line, " ")
	switch command {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		fmt.Fprintln(c.out, replHelp)
		return nil
	case "/image":
		if arg == "" {
			return fmt.Errorf("usage: /image <path>")
		}
		_, err := c.loadImage(ctx, strings.TrimSpace(arg))
		return err
	case "/discard":
		return c.surface.Discard()
	case "/clear":
		if c.surface.State() == capture.StatePreviewing {
			c.surface.Discard()
		}
		return c.controller.ClearConversation(ctx)
	case "/history":
		return c.printHistory(ctx)
	}

	if c.surface.State() == capture.StatePreviewing {
		return c.sendImage(ctx, line)
	}
	return c.ask(ctx, line)
}

func (c *client) printHistory(ctx context.Context) error {
	if c.user != "" {
		messages, err := c.history(ctx)
		if err != nil {
			return err
		}
		for _, m := range messages {
			fmt.Fprintf(c.out, "[%s] %s: %s\n", m.Timestamp.Local().Format(time.Kitchen), m.Role, m.Content)
		}
		return nil
	}

	messages, err := c.controller.Messages(ctx)
	if err != nil {
		return err
	}
	for _, m := range messages {
		fmt.Fprintf(c.out, "[%s] %s: %s\n", time.UnixMilli(m.Timestamp).Local().Format(time.Kitchen), m.Role, m.Content)
	}
	return nil
}

// watch prints frames from the relay's stream for conversation id until ctx is done
func (c *client) watch(ctx context.Context, id string) error {
	endpoint := "ws" + strings.TrimPrefix(c.server, "http") + "/ws/conversations/" + url.PathEscape(id)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("error connecting to stream: %w", err)
	}
	defer conn.Close()
	fmt.Fprintf(c.out, "Watching conversation %s. Press Ctrl+C to exit...\n", id)

	done := make(chan error, 1)
	go func() {
		for {
			var frame struct {
				Type    string          `json:"type"`
				Content json.RawMessage `json:"content"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				done <- err
				return
			}
			c.printFrame(frame.Type, frame.Content)
		}
	}()

	select {
	case err := <-done:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return nil
		}
		return err
	case <-ctx.Done():
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return nil
	}
}

func (c *client) printFrame(frameType string, content json.RawMessage) {
	switch frameType {
	case "history":
		var h struct {
			Messages []conversation.Message `json:"messages"`
			Busy     bool                   `json:"busy"`
		}
		if err := json.Unmarshal(content, &h); err != nil {
			c.log.LogError(err, "Bad history frame")
			return
		}
		for _, m := range h.Messages {
			fmt.Fprintf(c.out, "%s: %s\n", m.Role, m.Content)
		}
		if h.Busy {
			fmt.Fprintln(c.out, "(answering...)")
		}
	case "appended":
		var m conversation.Message
		if err := json.Unmarshal(content, &m); err != nil {
			c.log.LogError(err, "Bad appended frame")
			return
		}
		fmt.Fprintf(c.out, "%s: %s\n", m.Role, m.Content)
	case "cleared":
		fmt.Fprintln(c.out, "-- conversation cleared --")
	default:
		fmt.Fprintf(c.out, "%s %s\n", frameType, string(content))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
