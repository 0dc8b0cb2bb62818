package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/onnwee/stitchbot/telemetry"
)

// Transport runs the Telegram long-poll loop and adapts updates into
// orchestrator events. Each update is handled on its own goroutine; per-user
// interleaving is handled by the session tracker's merge guard, not here.
type Transport struct {
	api  *tgbotapi.BotAPI
	orch *Orchestrator
	http *http.Client
}

// NewTransport authenticates against the Telegram Bot API with the given token.
func NewTransport(token string, orch *Orchestrator) (*Transport, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	slog.Info("telegram bot authorized", slog.String("username", api.Self.UserName))
	return &Transport{api: api, orch: orch, http: http.DefaultClient}, nil
}

// Run polls for updates until ctx is canceled.
func (t *Transport) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.api.GetUpdatesChan(u)
	slog.Info("telegram update loop starting")
	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			slog.Info("telegram update loop stopped")
			return
		case update, ok := <-updates:
			if !ok {
				slog.Warn("telegram update channel closed")
				return
			}
			if update.Message == nil {
				continue
			}
			msg := update.Message
			// The hosting environment may deliver events concurrently; mirror
			// that here so one user's long merge never stalls the others.
			go t.dispatch(ctx, msg)
		}
	}
}

// dispatch routes one message to the matching orchestrator handler with a
// fresh correlation id.
func (t *Transport) dispatch(ctx context.Context, msg *tgbotapi.Message) {
	ctx = telemetry.WithCorrelation(ctx, uuid.New().String())
	rep := &telegramReplier{api: t.api, chatID: msg.Chat.ID}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			t.orch.HandleStart(ctx, rep)
		case "help":
			t.orch.HandleHelp(ctx, rep)
		case "merge":
			t.orch.HandleMerge(ctx, msg.From.ID, rep)
		case "reset":
			t.orch.HandleReset(ctx, msg.From.ID, rep)
		default:
			t.orch.HandleUnknown(ctx, rep)
		}
		return
	}
	if msg.Video != nil {
		t.orch.HandleUpload(ctx, t.uploadFrom(msg), rep)
		return
	}
	t.orch.HandleUnknown(ctx, rep)
}

// uploadFrom builds an Upload whose Open streams the file from Telegram's
// file servers.
func (t *Transport) uploadFrom(msg *tgbotapi.Message) Upload {
	fileID := msg.Video.FileID
	return Upload{
		UserID: msg.From.ID,
		Size:   int64(msg.Video.FileSize),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			url, err := t.api.GetFileDirectURL(fileID)
			if err != nil {
				return nil, fmt.Errorf("resolve file url: %w", err)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			resp, err := t.http.Do(req)
			if err != nil {
				return nil, fmt.Errorf("fetch file: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return nil, fmt.Errorf("fetch file: unexpected status %d", resp.StatusCode)
			}
			return resp.Body, nil
		},
	}
}

// telegramReplier implements Replier for one chat.
type telegramReplier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func (r *telegramReplier) Reply(ctx context.Context, text string) error {
	_, err := r.api.Send(tgbotapi.NewMessage(r.chatID, text))
	return err
}

func (r *telegramReplier) ReplyStatus(ctx context.Context, text string) (StatusMessage, error) {
	sent, err := r.api.Send(tgbotapi.NewMessage(r.chatID, text))
	if err != nil {
		return nil, err
	}
	return &telegramStatus{api: r.api, chatID: r.chatID, messageID: sent.MessageID}, nil
}

func (r *telegramReplier) ReplyVideo(ctx context.Context, path, caption string) error {
	video := tgbotapi.NewVideo(r.chatID, tgbotapi.FilePath(path))
	video.Caption = caption
	_, err := r.api.Send(video)
	return err
}

// telegramStatus edits a previously sent status message in place.
type telegramStatus struct {
	api       *tgbotapi.BotAPI
	chatID    int64
	messageID int
}

func (s *telegramStatus) Edit(ctx context.Context, text string) error {
	_, err := s.api.Send(tgbotapi.NewEditMessageText(s.chatID, s.messageID, text))
	return err
}
