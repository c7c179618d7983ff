package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"plantbot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"
)

const (
	telegramMaxMsgLen = 4000 // chunk size for plain text, in bytes
	telegramMaxRunes  = 4096 // hard limit of a single message
)

// MessageHandler processes one inbound message. Implementations must be
// safe for concurrent use: every update runs in its own goroutine.
type MessageHandler interface {
	Handle(ctx context.Context, msg domain.IncomingMessage)
}

// Telegram is the Telegram Bot API channel. It implements domain.Messenger.
type Telegram struct {
	token         string
	apiEndpoint   string
	fileEndpoint  string
	allowFrom     []int64 // Allowed user IDs (empty = allow all)
	pollTimeout   int
	maxConcurrent int
	debug         bool

	client *http.Client
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

type TelegramConfig struct {
	Token         string
	APIEndpoint   string   // optional, defaults to the public Bot API
	AllowFrom     []string // User IDs as strings
	PollTimeout   int
	MaxConcurrent int
	Debug         bool
	Client        *http.Client // optional
	Logger        *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: time.Duration(cfg.PollTimeout+30) * time.Second}
	}
	return &Telegram{
		token:         cfg.Token,
		apiEndpoint:   cfg.APIEndpoint,
		fileEndpoint:  fileEndpointFor(cfg.APIEndpoint),
		allowFrom:     allowed,
		pollTimeout:   cfg.PollTimeout,
		maxConcurrent: cfg.MaxConcurrent,
		debug:         cfg.Debug,
		client:        cfg.Client,
		logger:        cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Connect authenticates the token with getMe.
func (t *Telegram) Connect() error {
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.apiEndpoint, t.client)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	bot.Debug = t.debug
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return nil
}

// Username returns the bot's username once connected.
func (t *Telegram) Username() string {
	if t.bot == nil {
		return ""
	}
	return t.bot.Self.UserName
}

// Run long-polls for updates and hands each message to h in its own
// goroutine, at most maxConcurrent at a time. It returns when ctx is
// cancelled, after in-flight handlers have finished.
func (t *Telegram) Run(ctx context.Context, h MessageHandler) error {
	if t.bot == nil {
		return fmt.Errorf("telegram: Run called before Connect")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.bot.GetUpdatesChan(u)

	// Handlers outlive shutdown of the poll loop so that a photo being
	// analyzed still gets its answer.
	handlerCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(t.maxConcurrent)

	t.logger.Info("telegram polling started", "max_concurrent", t.maxConcurrent)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.bot.StopReceivingUpdates()
			return g.Wait()
		case update, ok := <-updates:
			if !ok {
				return g.Wait()
			}
			msg, ok := toIncoming(update)
			if !ok {
				continue
			}
			if !t.isAllowed(msg.SenderID) {
				t.logger.Warn("ignoring message from user not in allow list", "user_id", msg.SenderID)
				continue
			}
			g.Go(func() error {
				h.Handle(handlerCtx, msg)
				return nil
			})
		}
	}
}

// SendText implements domain.Messenger. Plain text is split on line
// boundaries and the first failing chunk aborts the send. Text with a parse
// mode always goes out as one message, so a rendering error never leaves
// part of it delivered; over-long formatted text is an error.
func (t *Telegram) SendText(ctx context.Context, chatID int64, text string, parseMode string) error {
	if parseMode != "" {
		if n := utf8.RuneCountInString(text); n > telegramMaxRunes {
			return fmt.Errorf("telegram sendMessage: formatted text too long (%d > %d characters)", n, telegramMaxRunes)
		}
		return t.send(ctx, chatID, text, parseMode)
	}
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if err := t.send(ctx, chatID, chunk, ""); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) send(ctx context.Context, chatID int64, text, parseMode string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return nil
}

// FileURL implements domain.Messenger via getFile. The link points at the
// same server as the API endpoint. It embeds the bot token and must not be
// logged.
func (t *Telegram) FileURL(ctx context.Context, fileID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("telegram getFile: %w", err)
	}
	return fmt.Sprintf(t.fileEndpoint, t.token, file.FilePath), nil
}

// fileEndpointFor derives the file download pattern from an API endpoint
// pattern: ".../bot%s/%s" serves files at ".../file/bot%s/%s".
func fileEndpointFor(apiEndpoint string) string {
	if i := strings.LastIndex(apiEndpoint, "/bot%s/%s"); i >= 0 {
		return apiEndpoint[:i] + "/file/bot%s/%s"
	}
	return tgbotapi.FileEndpoint
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// toIncoming converts an update into a channel-neutral message. Updates that
// are not plain messages (edits, callbacks, channel posts) are dropped.
func toIncoming(update tgbotapi.Update) (domain.IncomingMessage, bool) {
	m := update.Message
	if m == nil || m.Chat == nil {
		return domain.IncomingMessage{}, false
	}

	msg := domain.IncomingMessage{
		ChatID:    m.Chat.ID,
		Text:      m.Text,
		Timestamp: time.Unix(int64(m.Date), 0),
	}
	if m.From != nil {
		msg.SenderID = m.From.ID
		msg.SenderName = m.From.FirstName
	}
	if m.IsCommand() {
		msg.Command = m.Command()
	}
	for _, p := range m.Photo {
		msg.Photos = append(msg.Photos, domain.PhotoVariant{
			FileID:       p.FileID,
			FileUniqueID: p.FileUniqueID,
			Width:        p.Width,
			Height:       p.Height,
			FileSize:     p.FileSize,
		})
	}
	return msg, true
}

// splitMessage cuts text into chunks of at most maxLen bytes, preferring
// to cut at a newline in the second half of the chunk.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for len(text) > maxLen {
		cutAt := strings.LastIndex(text[:maxLen], "\n")
		if cutAt < maxLen/2 {
			cutAt = maxLen
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = strings.TrimLeft(text[cutAt:], "\n")
	}
	if text != "" || len(chunks) == 0 {
		chunks = append(chunks, text)
	}
	return chunks
}
