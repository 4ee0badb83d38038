package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram delivers alerts to a Telegram chat via the Bot API.
type Telegram struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegram creates a Telegram notifier. The constructor validates the
// token against the Bot API, so it needs network access.
func NewTelegram(botToken, chatID string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("create Telegram bot: %w", err)
	}
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	return &Telegram{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     3,
		retryDelayBase: time.Second,
	}, nil
}

// Notify sends one conjunction alert as a MarkdownV2 message.
func (t *Telegram) Notify(ctx context.Context, ev Event) error {
	return t.sendMarkdownV2(ctx, formatEvent(ev))
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry,
// giving up early when ctx is cancelled.
func (t *Telegram) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", t.maxRetries, lastErr)
}

func formatEvent(ev Event) string {
	name1 := ev.Object1Name
	if name1 == "" {
		name1 = "UNKNOWN"
	}
	name2 := ev.Object2Name
	if name2 == "" {
		name2 = "UNKNOWN"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚨 *High risk conjunction: %s*\n\n", escapeMarkdownV2(string(ev.EventType)))
	fmt.Fprintf(&b, "*%s* \\(%d\\) ↔ *%s* \\(%d\\)\n",
		escapeMarkdownV2(name1), ev.Object1ID, escapeMarkdownV2(name2), ev.Object2ID)
	fmt.Fprintf(&b, "TCA: %s\n", escapeMarkdownV2(ev.TCA.UTC().Format("2006-01-02 15:04:05 UTC")))
	fmt.Fprintf(&b, "Miss distance: %s\n", escapeMarkdownV2(fmt.Sprintf("%.3f km", ev.MissKm)))
	fmt.Fprintf(&b, "Relative speed: %s\n", escapeMarkdownV2(fmt.Sprintf("%.3f km/s", ev.RelVelocityKmS)))
	fmt.Fprintf(&b, "Risk score: %s", escapeMarkdownV2(fmt.Sprintf("%.2f", ev.RiskScore)))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
