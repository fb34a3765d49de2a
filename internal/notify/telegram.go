package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"skywatch/internal/track"
)

// Telegram pushes anomaly alerts to a Telegram chat so field operators
// hear about confirmed targets without watching the ground-station UI.
// A per-kind cooldown keeps a busy scene from flooding the chat.
type Telegram struct {
	botToken   string
	chatID     string
	apiBase    string
	httpClient *http.Client

	mu       sync.RWMutex
	enabled  bool
	lastSent map[string]time.Time
	cooldown time.Duration
}

// TelegramConfig holds bot credentials and throttling.
type TelegramConfig struct {
	BotToken        string
	ChatID          string
	Enabled         bool
	CooldownSeconds int
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	cooldown := time.Duration(cfg.CooldownSeconds) * time.Second
	if cooldown == 0 {
		cooldown = 30 * time.Second
	}
	return &Telegram{
		botToken:   cfg.BotToken,
		chatID:     cfg.ChatID,
		apiBase:    "https://api.telegram.org",
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		lastSent:   make(map[string]time.Time),
		cooldown:   cooldown,
	}
}

// Enabled reports whether alerts will be sent.
func (t *Telegram) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetEnabled toggles alert delivery.
func (t *Telegram) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// TrackConfirmed sends an alert for a newly confirmed anomaly track.
func (t *Telegram) TrackConfirmed(ctx context.Context, snap track.Snapshot) error {
	now := time.Now()
	zone, _ := now.Zone()
	message := fmt.Sprintf(
		"🚨 <b>Anomaly confirmed</b>\n\n"+
			"🎯 Track #%d at (%d, %d), %dx%d px\n"+
			"📊 Confidence: %.0f%%\n"+
			"🕐 Time: %s %s",
		snap.ID, snap.X, snap.Y, snap.Width, snap.Height,
		snap.Confidence*100,
		now.Format("2 Jan 2006, 15:04:05"), zone,
	)
	return t.send(ctx, "confirmed", message)
}

// TrackLost sends an alert when a confirmed track disappears, since a
// target that stopped being visible may matter as much as one appearing.
func (t *Telegram) TrackLost(ctx context.Context, snap track.Snapshot) error {
	message := fmt.Sprintf(
		"⚠️ <b>Track lost</b>\n\n"+
			"🎯 Track #%d last seen at (%d, %d)\n"+
			"🕐 Tracked for %s",
		snap.ID, snap.X, snap.Y,
		snap.LastSeen.Sub(snap.FirstSeen).Round(time.Second),
	)
	return t.send(ctx, "lost", message)
}

func (t *Telegram) send(ctx context.Context, kind, text string) error {
	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return nil
	}
	if t.botToken == "" || t.chatID == "" {
		t.mu.Unlock()
		return fmt.Errorf("telegram bot token or chat ID not configured")
	}
	if last, ok := t.lastSent[kind]; ok && time.Since(last) < t.cooldown {
		t.mu.Unlock()
		return nil
	}
	t.lastSent[kind] = time.Now()
	token := t.botToken
	chatID := t.chatID
	t.mu.Unlock()

	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	var tr telegramResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return fmt.Errorf("parse telegram response: %w", err)
	}
	if !tr.OK {
		return fmt.Errorf("telegram API error %d: %s", tr.ErrorCode, tr.Description)
	}
	return nil
}
