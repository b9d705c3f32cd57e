package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const telegramAPI = "https://api.telegram.org"

// TelegramNotifier sends plain-text alerts via the Telegram Bot API to one
// or more chats. Sends are rate limited to stay under the bot API limits.
type TelegramNotifier struct {
	botToken string
	chatIDs  []string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatIDs: Target chat/group/channel IDs
func NewTelegramNotifier(botToken string, chatIDs ...string) *TelegramNotifier {
	ids := make([]string, 0, len(chatIDs))
	for _, id := range chatIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return &TelegramNotifier{
		botToken: botToken,
		chatIDs:  ids,
		baseURL:  telegramAPI,
		client: &http.Client{
			Timeout: 6 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(20), 5),
	}
}

// Send delivers the alert to every chat. A failure for one chat does not
// stop delivery to the others; all failures are returned joined.
func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, id := range t.chatIDs {
		if err := t.sendOne(ctx, id, alert.Text()); err != nil {
			errs = append(errs, fmt.Errorf("telegram chat %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (t *TelegramNotifier) sendOne(ctx context.Context, chatID, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	log.Printf("[telegram] sent alert to %s", chatID)
	return nil
}
