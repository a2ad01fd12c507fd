// Package handlers runs the Telegram conversation: photos and a description
// come in, the collection is generated page by page and the pages and the
// PDF go back to the chat.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"pintatina/internal/app"
	"pintatina/internal/batch"
	"pintatina/internal/document"
	"pintatina/internal/domain"
	"pintatina/internal/mediagroup"
	"pintatina/internal/mention"
	"pintatina/internal/reference"
	"pintatina/internal/session"
	"pintatina/internal/telegram"
)

// Messenger is the part of the Telegram client the bot talks through.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendMessage(chatID int64, text string) (int, error)
	EditText(chatID int64, messageID int, text string) error
	SendPhoto(chatID int64, img domain.Image, caption string) error
	SendTyping(chatID int64)
	DownloadFile(ctx context.Context, fileID string) (domain.Image, error)
}

type Options struct {
	Messenger Messenger
	Service   *app.Service
	Logger    *slog.Logger
}

type Handler struct {
	tg         Messenger
	svc        *app.Service
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
}

func New(opts Options) (*Handler, error) {
	if opts.Messenger == nil {
		return nil, errors.New("handlers: messenger is required")
	}
	if opts.Service == nil {
		return nil, errors.New("handlers: service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Handler{
		tg:     opts.Messenger,
		svc:    opts.Service,
		logger: logger,
	}, nil
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.Message == nil || update.Message.Chat == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, msg)
	}

	if text := strings.TrimSpace(msg.Text); text != "" {
		return h.handleDescription(ctx, chatID, text)
	}

	return nil
}

// HandleMediaGroup stores the photos of a settled album and, when the album
// carried a caption, generates with it as the description.
func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if err := h.addPhotos(ctx, group.ChatID, group.FileIDs, group.Dropped, group.Caption); err != nil {
		h.logger.Error("media group processing failed", "chat", group.ChatID, "err", err)
	}
}

func (h *Handler) session(chatID int64) (*session.Session, error) {
	sess, err := h.svc.Sessions().GetOrCreate("tg:" + strconv.FormatInt(chatID, 10))
	if err != nil {
		return nil, err
	}
	sess.SetAddress(strconv.FormatInt(chatID, 10))
	return sess, nil
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start", "help", "ayuda":
		return h.tg.SendText(chatID,
			"🖍️ Pintatina\n\n"+
				"Convierto tus fotos en una colección de 10 páginas para colorear.\n\n"+
				"1. Envía de 1 a 4 fotos (puedes mandarlas juntas como álbum).\n"+
				"2. Escribe qué quieres, por ejemplo: @img1 jugando al fútbol con @img2.\n"+
				"3. Te envío cada página y al final el PDF.\n\n"+
				"Comandos:\n"+
				"/estado - Ver el progreso\n"+
				"/reintentar - Repetir las páginas que fallaron\n"+
				"/pdf - Recibir el PDF otra vez\n"+
				"/nueva - Empezar de cero\n"+
				"/contador - Colecciones generadas",
		)
	case "nueva", "reset":
		sess, err := h.session(chatID)
		if err != nil {
			return err
		}
		if sess.Batch.Running() {
			return h.tg.SendText(chatID, "⏳ Espera a que termine la colección actual.")
		}
		h.svc.Sessions().Remove(sess.ID)
		return h.tg.SendText(chatID, "✅ Listo, puedes enviar fotos nuevas.")
	case "estado", "status":
		sess, err := h.session(chatID)
		if err != nil {
			return err
		}
		if _, ok := sess.Batch.Input(); !ok {
			return h.tg.SendText(chatID, photosText(sess.Photos.Len(), 0))
		}
		return h.tg.SendText(chatID, statusText(sess.Batch.Snapshot()))
	case "reintentar", "retry":
		sess, err := h.session(chatID)
		if err != nil {
			return err
		}
		return h.retry(ctx, chatID, sess)
	case "pdf":
		sess, err := h.session(chatID)
		if err != nil {
			return err
		}
		if err := h.svc.Notify(ctx, sess, sess.Address()); err != nil {
			if errors.Is(err, document.ErrEmptyDocument) {
				return h.tg.SendText(chatID, "❌ Todavía no hay páginas terminadas.")
			}
			h.logger.Error("pdf delivery failed", "chat", chatID, "err", err)
			return h.tg.SendText(chatID, "❌ No pude enviar el PDF. Inténtalo de nuevo.")
		}
		return nil
	case "contador", "stats":
		return h.tg.SendText(chatID, fmt.Sprintf("📚 %d colecciones generadas.", h.svc.Generated()))
	default:
		return h.tg.SendText(chatID, "❌ Comando desconocido. Usa /ayuda.")
	}
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	fileID := msg.Photo[len(msg.Photo)-1].FileID

	if msg.MediaGroupID != "" && h.aggregator != nil {
		if h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			FileID:       fileID,
		}) {
			return nil
		}
	}

	return h.addPhotos(ctx, chatID, []string{fileID}, 0, msg.Caption)
}

func (h *Handler) addPhotos(ctx context.Context, chatID int64, fileIDs []string, dropped int, caption string) error {
	sess, err := h.session(chatID)
	if err != nil {
		return err
	}
	if sess.Batch.Running() {
		return h.tg.SendText(chatID, "⏳ Espera a que termine la colección actual.")
	}

	if room := sess.Photos.Remaining(); len(fileIDs) > room {
		dropped += len(fileIDs) - room
		fileIDs = fileIDs[:room]
	}

	h.tg.SendTyping(chatID)

	uploads := make([]reference.Upload, len(fileIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fileID := range fileIDs {
		eg.Go(func() error {
			img, err := h.tg.DownloadFile(egCtx, fileID)
			if err != nil {
				return err
			}
			uploads[i] = reference.Upload{Data: img.Data, MimeType: img.MimeType}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error("photo download failed", "chat", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ No pude descargar la foto. Envíala de nuevo.")
	}

	added := sess.Photos.Add(uploads...)
	dropped += len(uploads) - len(added)
	h.logger.Debug("photos stored", "chat", chatID, "added", len(added), "dropped", dropped)

	if caption = strings.TrimSpace(caption); caption != "" {
		return h.handleDescription(ctx, chatID, caption)
	}
	return h.tg.SendText(chatID, photosText(sess.Photos.Len(), dropped))
}

func (h *Handler) handleDescription(ctx context.Context, chatID int64, text string) error {
	sess, err := h.session(chatID)
	if err != nil {
		return err
	}
	if sess.Photos.Len() == 0 {
		return h.tg.SendText(chatID, "📷 Primero envíame al menos una foto.")
	}
	sess.SetDescription(text)

	if dangling := mention.Dangling(text, sess.Photos.Len()); len(dangling) > 0 {
		if err := h.tg.SendText(chatID, danglingText(dangling)); err != nil {
			return err
		}
	}

	return h.run(ctx, chatID, sess, func(ctx context.Context) (batch.Snapshot, error) {
		return h.svc.Generate(ctx, sess)
	})
}

func (h *Handler) retry(ctx context.Context, chatID int64, sess *session.Session) error {
	snap := sess.Batch.Snapshot()
	if _, ok := sess.Batch.Input(); !ok {
		return h.tg.SendText(chatID, "Todavía no has generado ninguna colección.")
	}
	if !snap.Retryable() {
		return h.tg.SendText(chatID, "✅ Todas las páginas están terminadas.")
	}

	return h.run(ctx, chatID, sess, func(ctx context.Context) (batch.Snapshot, error) {
		snap, err := h.svc.Retry(ctx, sess)
		if err != nil || snap.Completed() == 0 {
			return snap, err
		}
		if err := h.svc.Notify(context.WithoutCancel(ctx), sess, sess.Address()); err != nil {
			h.logger.Warn("pdf delivery after retry failed", "chat", chatID, "err", err)
		}
		return snap, nil
	})
}

// run executes one walk while a watcher edits a progress message and sends
// every page as soon as it completes.
func (h *Handler) run(ctx context.Context, chatID int64, sess *session.Session, walk func(context.Context) (batch.Snapshot, error)) error {
	if sess.Batch.Running() {
		return h.tg.SendText(chatID, "⏳ Ya estoy generando una colección, espera a que termine.")
	}

	statusID, err := h.tg.SendMessage(chatID, statusText(sess.Batch.Snapshot()))
	if err != nil {
		return err
	}

	events, unsubscribe := sess.Batch.Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.watch(chatID, statusID, events)
	}()

	snap, err := walk(ctx)
	unsubscribe()
	wg.Wait()

	switch {
	case errors.Is(err, batch.ErrBatchRunning):
		return h.tg.SendText(chatID, "⏳ Ya estoy generando una colección, espera a que termine.")
	case errors.Is(err, session.ErrNoPhotos), errors.Is(err, session.ErrNoDescription):
		return h.tg.SendText(chatID, "📷 Necesito al menos una foto y una descripción.")
	case err != nil:
		return err
	}

	if snap.Completed() == 0 {
		return h.tg.SendText(chatID, "❌ No pude generar ninguna página. Usa /reintentar.")
	}
	return nil
}

func (h *Handler) watch(chatID int64, statusID int, events <-chan batch.Event) {
	for ev := range events {
		if ev.Kind == batch.EventTransition && ev.Status == batch.StatusCompleted {
			if res := ev.Snapshot.Items[ev.Index].Result; res != nil {
				if err := h.tg.SendPhoto(chatID, *res, pageCaption(ev.Index)); err != nil {
					h.logger.Warn("page send failed", "chat", chatID, "index", ev.Index, "err", err)
				}
			}
		}
		if err := h.tg.EditText(chatID, statusID, statusText(ev.Snapshot)); err != nil {
			h.logger.Warn("status edit failed", "chat", chatID, "err", err)
		}
	}
}
