package channel

import (
	"context"
	"fmt"
	"log/slog"

	"plantbot/internal/agent"
	"plantbot/internal/domain"
	"plantbot/internal/metrics"
	"plantbot/internal/profile"

	"github.com/google/uuid"
)

// Identifier turns image bytes into a chat reply.
type Identifier interface {
	Identify(ctx context.Context, image []byte) (agent.Reply, error)
}

// Handler answers /start, /help and photo messages. It keeps no state
// between messages.
type Handler struct {
	messenger  domain.Messenger
	fetcher    *PhotoFetcher
	identifier Identifier
	profile    *profile.Profile
	parseMode  string
	logger     *slog.Logger
}

type HandlerConfig struct {
	Messenger  domain.Messenger
	Fetcher    *PhotoFetcher // optional, built on Messenger when nil
	Identifier Identifier
	Profile    *profile.Profile
	ParseMode  string // rendering mode for formatted replies, e.g. "Markdown"
	Logger     *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Profile == nil {
		cfg.Profile = profile.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = NewPhotoFetcher(cfg.Messenger, nil)
	}
	return &Handler{
		messenger:  cfg.Messenger,
		fetcher:    cfg.Fetcher,
		identifier: cfg.Identifier,
		profile:    cfg.Profile,
		parseMode:  cfg.ParseMode,
		logger:     cfg.Logger,
	}
}

// Handle routes a message: /start and /help get static replies, photos are
// analyzed, everything else is ignored.
func (h *Handler) Handle(ctx context.Context, msg domain.IncomingMessage) {
	metrics.MessagesTotal.Inc()

	switch {
	case msg.Command == "start":
		h.Start(ctx, msg)
	case msg.Command == "help":
		h.Help(ctx, msg)
	case msg.Command != "":
		h.logger.Debug("ignoring unknown command", "command", msg.Command, "chat_id", msg.ChatID)
	case msg.HasPhoto():
		h.Photo(ctx, msg)
	}
}

// Start greets the sender by first name.
func (h *Handler) Start(ctx context.Context, msg domain.IncomingMessage) {
	metrics.CommandsTotal.Inc()
	h.reply(ctx, msg.ChatID, h.profile.Greeting(msg.SenderName))
}

// Help sends the usage instructions.
func (h *Handler) Help(ctx context.Context, msg domain.IncomingMessage) {
	metrics.CommandsTotal.Inc()
	h.reply(ctx, msg.ChatID, h.profile.Messages.Help)
}

// Photo acknowledges the photo, then fetches, identifies and answers it.
// Any failure after the acknowledgment is logged once and answered with the
// generic apology; nothing is retried.
func (h *Handler) Photo(ctx context.Context, msg domain.IncomingMessage) {
	if !msg.HasPhoto() {
		h.reply(ctx, msg.ChatID, h.profile.Messages.SendPhoto)
		return
	}

	metrics.PhotosTotal.Inc()
	metrics.InflightRequests.Inc()
	defer metrics.InflightRequests.Dec()

	logger := h.logger.With(
		"request_id", uuid.NewString(),
		"chat_id", msg.ChatID,
		"user_id", msg.SenderID,
	)
	logger.Info("photo received", "variants", len(msg.Photos))

	h.reply(ctx, msg.ChatID, h.profile.Messages.Analyzing)

	if err := h.identify(ctx, msg, logger); err != nil {
		metrics.FailuresTotal.Inc()
		logger.Error("error processing image", "err", err)
		h.reply(ctx, msg.ChatID, h.profile.Messages.Failure)
	}
}

func (h *Handler) identify(ctx context.Context, msg domain.IncomingMessage, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	photo, _ := msg.LargestPhoto()
	image, err := h.fetcher.Fetch(ctx, photo)
	if err != nil {
		return fmt.Errorf("fetch photo: %w", err)
	}

	reply, err := h.identifier.Identify(ctx, image)
	if err != nil {
		return err
	}

	parseMode := ""
	if reply.Markdown {
		parseMode = h.parseMode
	}
	if err := h.messenger.SendText(ctx, msg.ChatID, reply.Text, parseMode); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}

	logger.Info("photo answered",
		"bytes", len(image),
		"width", photo.Width,
		"height", photo.Height,
		"rejected", reply.Rejected,
	)
	return nil
}

// reply sends plain text. Failures are logged and otherwise dropped.
func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.messenger.SendText(ctx, chatID, text, ""); err != nil {
		h.logger.Warn("send reply failed", "chat_id", chatID, "err", err)
	}
}
