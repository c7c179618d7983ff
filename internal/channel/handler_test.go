package channel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"plantbot/internal/agent"
	"plantbot/internal/domain"
	"plantbot/internal/profile"
)

// --- fakes ---

type sentMessage struct {
	chatID    int64
	text      string
	parseMode string
}

type fakeMessenger struct {
	mu         sync.Mutex
	sent       []sentMessage
	resolved   []string
	fileURL    string
	fileErr    error
	failParsed bool // reject sends that use a parse mode, like a markup error
}

func (f *fakeMessenger) SendText(ctx context.Context, chatID int64, text string, parseMode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failParsed && parseMode != "" {
		return errors.New("Bad Request: can't parse entities")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, parseMode: parseMode})
	return nil
}

func (f *fakeMessenger) FileURL(ctx context.Context, fileID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, fileID)
	if f.fileErr != nil {
		return "", f.fileErr
	}
	return f.fileURL, nil
}

type stubVision struct {
	calls atomic.Int32
	text  string
	err   error
}

func (s *stubVision) Name() string { return "stub" }

func (s *stubVision) Healthy(ctx context.Context) error { return nil }

func (s *stubVision) Describe(ctx context.Context, req domain.VisionRequest) (*domain.VisionResponse, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.VisionResponse{Text: s.text}, nil
}

// logRecorder is a slog.Handler that keeps every record.
type logRecorder struct {
	mu      *sync.Mutex
	records *[]slog.Record
}

func newLogRecorder() logRecorder {
	return logRecorder{mu: &sync.Mutex{}, records: &[]slog.Record{}}
}

func (l logRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (l logRecorder) Handle(_ context.Context, r slog.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, r.Clone())
	return nil
}

func (l logRecorder) WithAttrs([]slog.Attr) slog.Handler { return l }

func (l logRecorder) WithGroup(string) slog.Handler { return l }

func (l logRecorder) count(level slog.Level) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range *l.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

type harness struct {
	handler   *Handler
	messenger *fakeMessenger
	vision    *stubVision
	logs      logRecorder
	downloads *atomic.Int32
	profile   *profile.Profile
}

func newHarness(t *testing.T, answer string) *harness {
	t.Helper()

	var downloads atomic.Int32
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		if r.URL.Path != "/file/photo.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("\xff\xd8\xff\xe0jpeg"))
	}))
	t.Cleanup(files.Close)

	p := profile.Default()
	messenger := &fakeMessenger{fileURL: files.URL + "/file/photo.jpg"}
	vision := &stubVision{text: answer}
	logs := newLogRecorder()
	logger := slog.New(logs)

	pipeline := agent.NewPipeline(agent.PipelineConfig{
		Provider: vision,
		Profile:  p,
		Formatter: agent.NewFormatter(p, func() time.Time {
			return time.Date(2026, 10, 19, 9, 30, 0, 0, time.Local)
		}),
		Logger: logger,
	})

	return &harness{
		handler: NewHandler(HandlerConfig{
			Messenger:  messenger,
			Fetcher:    NewPhotoFetcher(messenger, files.Client()),
			Identifier: pipeline,
			Profile:    p,
			ParseMode:  "Markdown",
			Logger:     logger,
		}),
		messenger: messenger,
		vision:    vision,
		logs:      logs,
		downloads: &downloads,
		profile:   p,
	}
}

func photoMessage() domain.IncomingMessage {
	return domain.IncomingMessage{
		ChatID:     42,
		SenderID:   7,
		SenderName: "Ada",
		Photos: []domain.PhotoVariant{
			{FileID: "small", Width: 90, Height: 90},
			{FileID: "medium", Width: 320, Height: 320},
			{FileID: "large", Width: 1280, Height: 960},
		},
	}
}

const roseAnswer = "Name: Rose\nScientific Name: Rosa damascena\nColors: Red\nBrief History: Old.\nTreatment Plan: Water."

// --- intake ---

func TestPhoto_NoPhotoAsksForPhoto(t *testing.T) {
	h := newHarness(t, roseAnswer)
	h.handler.Photo(context.Background(), domain.IncomingMessage{ChatID: 42, Text: "what is this?"})

	if len(h.messenger.sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(h.messenger.sent))
	}
	if h.messenger.sent[0].text != "Please send me a photo of a plant." {
		t.Fatalf("unexpected reply %q", h.messenger.sent[0].text)
	}
	if len(h.messenger.resolved) != 0 || h.downloads.Load() != 0 {
		t.Fatal("no fetch should happen without a photo")
	}
	if h.vision.calls.Load() != 0 {
		t.Fatal("no inference should happen without a photo")
	}
}

func TestHandle_IgnoresNonPhotoMessages(t *testing.T) {
	h := newHarness(t, roseAnswer)
	h.handler.Handle(context.Background(), domain.IncomingMessage{ChatID: 42, Text: "hello"})
	h.handler.Handle(context.Background(), domain.IncomingMessage{ChatID: 42, Command: "status"})

	if len(h.messenger.sent) != 0 {
		t.Fatalf("expected no replies, got %+v", h.messenger.sent)
	}
}

func TestPhoto_AcknowledgesThenAnswers(t *testing.T) {
	h := newHarness(t, roseAnswer)
	h.handler.Handle(context.Background(), photoMessage())

	sent := h.messenger.sent
	if len(sent) != 2 {
		t.Fatalf("expected 2 replies, got %d: %+v", len(sent), sent)
	}
	if sent[0].text != "Analyzing your plant image... Please wait." {
		t.Fatalf("first reply should be the acknowledgment, got %q", sent[0].text)
	}
	if sent[0].parseMode != "" {
		t.Fatal("acknowledgment should be plain text")
	}
	if sent[1].parseMode != "Markdown" {
		t.Fatalf("formatted reply should use Markdown, got %q", sent[1].parseMode)
	}
	for _, want := range []string{"🌿 *Name:* Rose", "_Rosa damascena_", "\n\n💧 *Treatment Plan:* Water.", "_09:30 AM_"} {
		if !strings.Contains(sent[1].text, want) {
			t.Fatalf("reply missing %q:\n%s", want, sent[1].text)
		}
	}
	if h.logs.count(slog.LevelError) != 0 {
		t.Fatal("no error should be logged on success")
	}
}

func TestPhoto_FetchesLargestVariant(t *testing.T) {
	h := newHarness(t, roseAnswer)
	h.handler.Photo(context.Background(), photoMessage())

	if len(h.messenger.resolved) != 1 || h.messenger.resolved[0] != "large" {
		t.Fatalf("expected only 'large' to be resolved, got %v", h.messenger.resolved)
	}
	if h.downloads.Load() != 1 {
		t.Fatalf("expected 1 download, got %d", h.downloads.Load())
	}
}

func TestPhoto_Rejection(t *testing.T) {
	h := newHarness(t, "I couldn't identify a plant in this image. Please send a clearer image of a plant.")
	h.handler.Photo(context.Background(), photoMessage())

	sent := h.messenger.sent
	if len(sent) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(sent))
	}
	want := "❌ I couldn't identify a plant in this image. Please send a clearer image of a plant."
	if sent[1].text != want {
		t.Fatalf("expected %q, got %q", want, sent[1].text)
	}
	if sent[1].parseMode != "" {
		t.Fatal("rejection apology should be plain text")
	}
}

// --- error boundary ---

func TestPhoto_FailuresSendOneApology(t *testing.T) {
	cases := []struct {
		name  string
		setup func(h *harness)
	}{
		{"resolve", func(h *harness) { h.messenger.fileErr = errors.New("Bad Request: file is too big") }},
		{"download", func(h *harness) { h.messenger.fileURL += ".missing" }},
		{"inference", func(h *harness) { h.vision.err = errors.New("quota exceeded") }},
		{"empty answer", func(h *harness) { h.vision.text = "" }},
		{"send", func(h *harness) { h.messenger.failParsed = true }},
		{"long reply send", func(h *harness) {
			h.vision.text = "Name: Rose\nBrief History: " + strings.Repeat("Cultivated for its scent.\n", 300)
			h.messenger.failParsed = true
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, roseAnswer)
			tc.setup(h)
			h.handler.Photo(context.Background(), photoMessage())

			sent := h.messenger.sent
			if len(sent) != 2 {
				t.Fatalf("expected acknowledgment + apology, got %d: %+v", len(sent), sent)
			}
			if sent[0].text != h.profile.Messages.Analyzing {
				t.Fatalf("first reply should be the acknowledgment, got %q", sent[0].text)
			}
			if sent[1].text != "Sorry, I encountered an error while processing your image. Please try again later." {
				t.Fatalf("expected generic apology, got %q", sent[1].text)
			}
			if n := h.logs.count(slog.LevelError); n != 1 {
				t.Fatalf("expected exactly 1 error log, got %d", n)
			}
		})
	}
}

func TestPhoto_InferenceNotCalledWhenFetchFails(t *testing.T) {
	h := newHarness(t, roseAnswer)
	h.messenger.fileErr = errors.New("network down")
	h.handler.Photo(context.Background(), photoMessage())

	if h.vision.calls.Load() != 0 {
		t.Fatal("inference should not run after a failed fetch")
	}
}

// --- commands ---

func TestStart_GreetsByName(t *testing.T) {
	h := newHarness(t, roseAnswer)
	h.handler.Handle(context.Background(), domain.IncomingMessage{ChatID: 42, SenderName: "Ada", Command: "start"})

	if len(h.messenger.sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(h.messenger.sent))
	}
	want := "Hi Ada! I'm a Plant Identifier Bot. Send me a photo of a plant, and I'll tell you what it is!"
	if h.messenger.sent[0].text != want {
		t.Fatalf("expected %q, got %q", want, h.messenger.sent[0].text)
	}
}

func TestCommands_NeverFetchOrInfer(t *testing.T) {
	h := newHarness(t, roseAnswer)

	// A photo first, so the commands run after a completed exchange.
	h.handler.Handle(context.Background(), photoMessage())
	resolved, downloads, calls := len(h.messenger.resolved), h.downloads.Load(), h.vision.calls.Load()

	for _, cmd := range []string{"start", "help", "start"} {
		msg := photoMessage()
		msg.Photos = nil
		msg.Command = cmd
		h.handler.Handle(context.Background(), msg)
	}

	if len(h.messenger.resolved) != resolved || h.downloads.Load() != downloads {
		t.Fatal("commands must not fetch files")
	}
	if h.vision.calls.Load() != calls {
		t.Fatal("commands must not call inference")
	}
	last := h.messenger.sent[len(h.messenger.sent)-2]
	if last.text != h.profile.Messages.Help {
		t.Fatalf("expected help text, got %q", last.text)
	}
}

func TestHandle_ConcurrentPhotos(t *testing.T) {
	h := newHarness(t, roseAnswer)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(chatID int64) {
			defer wg.Done()
			msg := photoMessage()
			msg.ChatID = chatID
			h.handler.Handle(context.Background(), msg)
		}(int64(100 + i))
	}
	wg.Wait()

	perChat := make(map[int64]int)
	for _, s := range h.messenger.sent {
		perChat[s.chatID]++
	}
	if len(perChat) != 8 {
		t.Fatalf("expected replies in 8 chats, got %d", len(perChat))
	}
	for chatID, n := range perChat {
		if n != 2 {
			t.Fatalf("chat %d: expected 2 replies, got %d", chatID, n)
		}
	}
}

func TestPhoto_FailedLongReplyDeliversNoPart(t *testing.T) {
	tg, api := newTestTelegram(t)

	// Longer than one plain-text chunk in bytes, still one message in
	// characters; the trailing markup is rejected by the API.
	answer := "Name: Rose\nBrief History: " + strings.Repeat("Роза известна с древности.\n", 100) + "*unbalanced"
	vision := &stubVision{text: answer}
	logs := newLogRecorder()
	logger := slog.New(logs)
	p := profile.Default()

	h := NewHandler(HandlerConfig{
		Messenger:  tg,
		Fetcher:    NewPhotoFetcher(tg, nil),
		Identifier: agent.NewPipeline(agent.PipelineConfig{Provider: vision, Profile: p, Logger: logger}),
		Profile:    p,
		ParseMode:  "Markdown",
		Logger:     logger,
	})
	h.Photo(context.Background(), photoMessage())

	if vision.calls.Load() != 1 {
		t.Fatalf("expected 1 inference call, got %d", vision.calls.Load())
	}
	if len(api.sent) != 2 {
		t.Fatalf("expected acknowledgment + apology, got %d messages", len(api.sent))
	}
	if api.sent[0].Get("text") != p.Messages.Analyzing || api.sent[1].Get("text") != p.Messages.Failure {
		t.Fatalf("unexpected messages %q, %q", api.sent[0].Get("text"), api.sent[1].Get("text"))
	}
	if n := logs.count(slog.LevelError); n != 1 {
		t.Fatalf("expected exactly 1 error log, got %d", n)
	}
}

func TestNewHandler_NilLogger(t *testing.T) {
	messenger := &fakeMessenger{}
	h := NewHandler(HandlerConfig{
		Messenger:  messenger,
		Identifier: agent.NewPipeline(agent.PipelineConfig{Provider: &stubVision{text: roseAnswer}}),
	})

	h.Handle(context.Background(), domain.IncomingMessage{ChatID: 42, SenderName: "Ada", Command: "start"})
	h.Handle(context.Background(), domain.IncomingMessage{ChatID: 42, Command: "help"})

	if len(messenger.sent) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(messenger.sent))
	}
}
