package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"sync"
	"time"

	"github.com/loykin/warden/internal/classify"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/state"
)

// Kind labels a notification so the channel can render it distinctly.
type Kind int

const (
	KindStart Kind = iota
	KindStop
	KindRestart
	KindError
	KindCritical
	KindBackup
	KindResource
	KindInfo
)

func (k Kind) label() (emoji, tag string) {
	switch k {
	case KindStart:
		return "\U0001F680", "START"
	case KindStop:
		return "\U0001F6D1", "STOP"
	case KindRestart:
		return "\U0001F504", "RESTART"
	case KindError:
		return "⚠️", "ERROR"
	case KindCritical:
		return "\U0001F534", "CRITICAL"
	case KindBackup:
		return "\U0001F4BE", "BACKUP"
	case KindResource:
		return "\U0001F4CA", "RESOURCES"
	default:
		return "ℹ️", "INFO"
	}
}

// Dispatcher sends alerts to an external channel. Delivery is fire-and-forget:
// a failed send is logged as a watcher-sourced warning and never affects
// supervision.
type Dispatcher interface {
	Notify(kind Kind, message string)
}

// Noop discards all notifications.
type Noop struct{}

func (Noop) Notify(Kind, string) {}

// Telegram delivers notifications through the Telegram bot API.
// Configuration is read from the live config on every send, so enabling or
// rotating the token takes effect without a restart.
type Telegram struct {
	cfg    *config.Store
	bc     *state.Broadcaster
	client *http.Client
	apiURL string // override for tests; default is the Telegram API
	wg     sync.WaitGroup
}

const telegramAPI = "https://api.telegram.org"

func NewTelegram(cfg *config.Store, bc *state.Broadcaster) *Telegram {
	return &Telegram{
		cfg:    cfg,
		bc:     bc,
		client: &http.Client{Timeout: 10 * time.Second},
		apiURL: telegramAPI,
	}
}

// Notify queues the message for asynchronous delivery.
func (t *Telegram) Notify(kind Kind, message string) {
	tg := t.cfg.Current().Telegram
	if !tg.Enabled {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.send(tg, kind, message); err != nil {
			t.bc.Log(classify.SeverityWarning, state.SourceWatcher,
				fmt.Sprintf("Notification delivery failed: %v", err))
		}
	}()
}

// Flush waits for in-flight sends. Used at shutdown and in tests.
func (t *Telegram) Flush() { t.wg.Wait() }

func (t *Telegram) send(tg config.TelegramConfig, kind Kind, message string) error {
	emoji, tag := kind.label()
	// Only the markup here may carry tags; the message itself is untrusted
	// server output and must not break parse_mode=HTML.
	text := fmt.Sprintf("%s <b>[%s]</b> %s\n<i>%s</i>",
		emoji, time.Now().Format("15:04:05"), tag, html.EscapeString(message))

	body, err := json.Marshal(map[string]string{
		"chat_id":    tg.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, tg.Token)
	resp, err := t.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram api returned %s", resp.Status)
	}
	return nil
}
