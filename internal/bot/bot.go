// Package bot implements the Telegram surface: listing notifications plus
// the management commands that control searches and filters.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/blakev/ksl-april/internal/config"
	"github.com/blakev/ksl-april/internal/model"
	"github.com/blakev/ksl-april/internal/scheduler"
	"github.com/blakev/ksl-april/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Control is the scheduler surface the bot drives.
type Control interface {
	Add(search model.Search)
	TriggerNow(searchID int64) bool
	Snapshot() []scheduler.Status
}

// Bot handles user commands and sends listing notifications.
type Bot struct {
	api   telegramAPI
	store storage.Storage
	sched Control
	cfg   *config.Config
	log   *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, and config.
// SetControl must be called before Run so commands can reach the scheduler;
// the bot is constructed first because it is also the poller's Notifier.
func New(token string, store storage.Storage, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:   api,
		store: store,
		cfg:   cfg,
		log:   log,
	}, nil
}

// SetControl wires the scheduler surface the bot's commands drive.
func (b *Bot) SetControl(sched Control) {
	b.sched = sched
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// Notify sends a new-listing notification to the configured chat. When the
// process is not in live mode the message is logged and dropped.
func (b *Bot) Notify(text string) error {
	if !b.cfg.Live {
		b.log.Info("notification suppressed (not live)", "text", text)
		return nil
	}
	msg := tgbotapi.NewMessage(b.cfg.NotifyChatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	b.log.Info("notification sent", "chat_id", b.cfg.NotifyChatID)
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "add":
		b.handleAdd(ctx, chatID, args)
	case "list":
		b.handleList(ctx, chatID)
	case "info":
		b.handleInfo(ctx, chatID, args)
	case cmdFound:
		b.handleFound(ctx, chatID, args)
	case "remove":
		b.handleRemove(ctx, chatID, args)
	case "pause":
		b.handlePause(ctx, chatID, args)
	case "resume":
		b.handleResume(ctx, chatID, args)
	case "undelete":
		b.handleUndelete(ctx, chatID)
	case "interval":
		b.handleInterval(ctx, chatID, args)
	case cmdCheck:
		b.handleCheck(ctx, chatID, args)
	case "status":
		b.handleStatus(chatID)
	case cmdFilters:
		b.handleFilters(ctx, chatID, args)
	case "include", "exclude", "include_re", "exclude_re":
		b.handleAddFilter(ctx, chatID, args, cmd)
	case cmdRmFilter:
		b.handleRmFilter(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for the command reference.")
	}
}
