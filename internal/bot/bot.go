package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/rag-backend/internal/chat"
	"github.com/xaenox/rag-backend/internal/query"
	"go.uber.org/zap"
)

// Bot is a Telegram front end to the query pipeline. Telegram users are
// mapped to store identities with a "tg:" prefix so they never collide
// with email-keyed accounts.
type Bot struct {
	api    *tgbotapi.BotAPI
	query  *query.Service
	chat   *chat.Service
	logger *zap.Logger

	mu      sync.Mutex
	threads map[int64]string // chat id -> active thread id
}

func New(token string, queryService *query.Service, chatService *chat.Service, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:     api,
		query:   queryService,
		chat:    chatService,
		logger:  logger,
		threads: make(map[int64]string),
	}, nil
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		go b.handleMessage(update.Message)
	}

	return nil
}

func userIdentity(message *tgbotapi.Message) string {
	return fmt.Sprintf("tg:%d", message.From.ID)
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx := context.Background()

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	question := message.Text
	if question == "" {
		b.sendMessage(message.Chat.ID, "Please send me a text question.")
		return
	}

	b.mu.Lock()
	threadID := b.threads[message.Chat.ID]
	b.mu.Unlock()

	result, err := b.query.SubmitQuery(ctx, userIdentity(message), question, threadID)
	if err != nil {
		b.replyWithError(message, err)
		return
	}

	b.mu.Lock()
	b.threads[message.Chat.ID] = result.ThreadID
	b.mu.Unlock()

	msg := tgbotapi.NewMessage(message.Chat.ID, result.Answer)
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send answer",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) replyWithError(message *tgbotapi.Message, err error) {
	var quotaErr *query.QuotaExceededError
	switch {
	case errors.Is(err, query.ErrEmptyQuestion):
		b.sendMessage(message.Chat.ID, "Please send a non-empty question.")
	case errors.Is(err, query.ErrQuestionTooLong):
		b.sendMessage(message.Chat.ID, "That question is too long. Please shorten it and try again.")
	case errors.As(err, &quotaErr):
		b.sendMessage(message.Chat.ID, fmt.Sprintf(
			"You've used all %d of your requests. Use /limits to check your usage.", quotaErr.Max))
	case errors.Is(err, chat.ErrThreadNotFound):
		// The active thread expired with its stored record. Reset and
		// ask the user to resend.
		b.mu.Lock()
		delete(b.threads, message.Chat.ID)
		b.mu.Unlock()
		b.sendMessage(message.Chat.ID, "Your conversation has expired. Please send your question again to start a new one.")
	default:
		b.logger.Error("Failed to answer query",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't process your question. Please try again.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "new":
		b.handleNew(message)
	case "limits":
		b.handleLimits(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome! I answer questions using a curated knowledge base.

Just send me a question and I'll reply in the current conversation.
Use /new to start a fresh conversation and /limits to check your remaining requests.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/new - Start a new conversation
/limits - Show your remaining requests

Send any text message and I'll answer it within the current conversation.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleNew(message *tgbotapi.Message) {
	b.mu.Lock()
	delete(b.threads, message.Chat.ID)
	b.mu.Unlock()

	b.sendMessage(message.Chat.ID, "Started a new conversation. Ask away!")
}

func (b *Bot) handleLimits(ctx context.Context, message *tgbotapi.Message) {
	limits, err := b.chat.Limits(ctx, userIdentity(message))
	if err != nil {
		b.logger.Error("Failed to get usage limits",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your usage limits.")
		return
	}

	b.sendMessage(message.Chat.ID, fmt.Sprintf(
		"You have %d of %d requests remaining (%d used).",
		limits.RequestsAvailable, limits.MaxRequests, limits.RequestsUsed))
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
