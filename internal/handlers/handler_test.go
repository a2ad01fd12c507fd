package handlers

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pintatina/internal/app"
	"pintatina/internal/config"
	"pintatina/internal/domain"
	"pintatina/internal/mediagroup"
	"pintatina/internal/notify"
	"pintatina/internal/prompt"
	"pintatina/internal/telegram"
)

const chat int64 = 42

type sentDocument struct {
	chatID int64
	name   string
	size   int
}

type fakeMessenger struct {
	png []byte

	mu        sync.Mutex
	texts     []string
	photos    []string
	edits     int
	documents []sentDocument
	downloads []string
}

func (f *fakeMessenger) SendText(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeMessenger) SendMessage(chatID int64, text string) (int, error) {
	return 7, f.SendText(chatID, text)
}

func (f *fakeMessenger) EditText(chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	return nil
}

func (f *fakeMessenger) SendPhoto(chatID int64, img domain.Image, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, caption)
	return nil
}

func (f *fakeMessenger) SendTyping(chatID int64) {}

func (f *fakeMessenger) DownloadFile(ctx context.Context, fileID string) (domain.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, fileID)
	return domain.Image{Data: f.png, MimeType: "image/png"}, nil
}

func (f *fakeMessenger) SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, sentDocument{chatID: chatID, name: name, size: len(data)})
	return nil
}

func (f *fakeMessenger) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

// pageProvider fails every attempt for the pages listed in failing until
// heal is called.
type pageProvider struct {
	png []byte

	mu      sync.Mutex
	failing map[int]bool
}

func (p *pageProvider) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, mod := range prompt.Modifiers() {
		if p.failing[i] && strings.Contains(req.Text, "Variation: "+mod+"\n") {
			return domain.Image{}, assert.AnError
		}
	}
	return domain.Image{Data: p.png, MimeType: "image/png"}, nil
}

func (p *pageProvider) heal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing = nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, image.NewGray(image.Rect(0, 0, 3, 4))))
	return buf.Bytes()
}

func newHandler(t *testing.T, failing ...int) (*Handler, *fakeMessenger, *pageProvider) {
	t.Helper()
	pic := testPNG(t)
	tg := &fakeMessenger{png: pic}
	provider := &pageProvider{png: pic, failing: map[int]bool{}}
	for _, i := range failing {
		provider.failing[i] = true
	}

	svc, err := app.NewService(config.Config{MaxSessions: 8, CounterSeed: 1245}, provider, notify.Telegram{Sender: tg}, nil)
	require.NoError(t, err)

	h, err := New(Options{Messenger: tg, Service: svc})
	require.NoError(t, err)
	return h, tg, provider
}

func command(text string) telegram.Update {
	name := strings.Fields(text)[0]
	return telegram.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chat},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func photo(fileID, caption string) telegram.Update {
	return telegram.Update{Message: &tgbotapi.Message{
		Chat:    &tgbotapi.Chat{ID: chat},
		Caption: caption,
		Photo:   []tgbotapi.PhotoSize{{FileID: fileID + "-small"}, {FileID: fileID}},
	}}
}

func text(body string) telegram.Update {
	return telegram.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chat}, Text: body}}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestHandleUpdate_Help(t *testing.T) {
	h, tg, _ := newHandler(t)
	require.NoError(t, h.HandleUpdate(context.Background(), command("/start")))
	assert.Contains(t, tg.lastText(), "Pintatina")

	require.NoError(t, h.HandleUpdate(context.Background(), command("/nope")))
	assert.Contains(t, tg.lastText(), "Comando desconocido")
}

func TestHandleUpdate_IgnoresEmptyUpdates(t *testing.T) {
	h, tg, _ := newHandler(t)
	require.NoError(t, h.HandleUpdate(context.Background(), telegram.Update{}))
	assert.Empty(t, tg.texts)
}

func TestHandleUpdate_DescriptionNeedsPhotos(t *testing.T) {
	h, tg, _ := newHandler(t)
	require.NoError(t, h.HandleUpdate(context.Background(), text("un dragón")))
	assert.Contains(t, tg.lastText(), "Primero")
	assert.Empty(t, tg.photos)
}

func TestHandleUpdate_PhotoThenDescription(t *testing.T) {
	h, tg, _ := newHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, photo("f1", "")))
	assert.Equal(t, []string{"f1"}, tg.downloads)
	assert.Contains(t, tg.lastText(), "Tengo 1 de 4 fotos")
	assert.Contains(t, tg.lastText(), "@img1")

	require.NoError(t, h.HandleUpdate(ctx, text("@img1 en la playa")))

	assert.Len(t, tg.photos, prompt.Count)
	assert.Equal(t, "Página 1 de 10", tg.photos[0])
	assert.Equal(t, 2*prompt.Count+2, tg.edits)
	require.Len(t, tg.documents, 1)
	assert.Equal(t, chat, tg.documents[0].chatID)
	assert.True(t, strings.HasPrefix(tg.documents[0].name, "Pintatina_Coleccion_"))

	require.NoError(t, h.HandleUpdate(ctx, command("/contador")))
	assert.Contains(t, tg.lastText(), "1246")
}

func TestHandleUpdate_CaptionStartsGeneration(t *testing.T) {
	h, tg, _ := newHandler(t)
	require.NoError(t, h.HandleUpdate(context.Background(), photo("f1", "un gato astronauta")))
	assert.Len(t, tg.photos, prompt.Count)
	assert.Len(t, tg.documents, 1)
}

func TestHandleUpdate_DanglingMentionWarns(t *testing.T) {
	h, tg, _ := newHandler(t)
	ctx := context.Background()
	require.NoError(t, h.HandleUpdate(ctx, photo("f1", "")))
	require.NoError(t, h.HandleUpdate(ctx, text("@img1 con @img3")))

	found := false
	for _, s := range tg.texts {
		if strings.Contains(s, "@img3") && strings.Contains(s, "no hay foto") {
			found = true
		}
	}
	assert.True(t, found)
	assert.Len(t, tg.photos, prompt.Count)
}

func TestHandleUpdate_RetryFailedPages(t *testing.T) {
	h, tg, provider := newHandler(t, 3, 8)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, photo("f1", "un castillo")))
	assert.Len(t, tg.photos, prompt.Count-2)
	require.Len(t, tg.documents, 1)

	require.NoError(t, h.HandleUpdate(ctx, command("/estado")))
	assert.Contains(t, tg.lastText(), "8/10")
	assert.Contains(t, tg.lastText(), "/reintentar")

	provider.heal()
	require.NoError(t, h.HandleUpdate(ctx, command("/reintentar")))
	assert.Len(t, tg.photos, prompt.Count)
	assert.Equal(t, "Página 4 de 10", tg.photos[prompt.Count-2])
	assert.Len(t, tg.documents, 2)

	require.NoError(t, h.HandleUpdate(ctx, command("/reintentar")))
	assert.Contains(t, tg.lastText(), "Todas las páginas")
}

func TestHandleUpdate_RetryWithoutCollection(t *testing.T) {
	h, tg, _ := newHandler(t)
	require.NoError(t, h.HandleUpdate(context.Background(), command("/reintentar")))
	assert.Contains(t, tg.lastText(), "Todavía no")
}

func TestHandleUpdate_PDF(t *testing.T) {
	h, tg, _ := newHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command("/pdf")))
	assert.Contains(t, tg.lastText(), "no hay páginas")

	require.NoError(t, h.HandleUpdate(ctx, photo("f1", "un tren")))
	require.NoError(t, h.HandleUpdate(ctx, command("/pdf")))
	assert.Len(t, tg.documents, 2)
}

func TestHandleUpdate_NewClearsSession(t *testing.T) {
	h, tg, _ := newHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, photo("f1", "")))
	require.NoError(t, h.HandleUpdate(ctx, command("/nueva")))
	require.NoError(t, h.HandleUpdate(ctx, command("/estado")))
	assert.Contains(t, tg.lastText(), "Tengo 0 de 4 fotos")
}

func TestHandleMediaGroup_DropsBeyondCapacity(t *testing.T) {
	h, tg, _ := newHandler(t)
	h.HandleMediaGroup(context.Background(), mediagroup.Group{
		ChatID:  chat,
		FileIDs: []string{"a", "b", "c", "d", "e"},
	})

	assert.Len(t, tg.downloads, 4)
	assert.Contains(t, tg.lastText(), "Tengo 4 de 4 fotos")
	assert.Contains(t, tg.lastText(), "Ignoré 1")
}

func TestHandlePhoto_AlbumGoesThroughAggregator(t *testing.T) {
	h, tg, _ := newHandler(t)
	var groups []mediagroup.Group
	ag := mediagroup.New(mediagroup.Options{OnFlush: func(g mediagroup.Group) { groups = append(groups, g) }})
	h.SetMediaGroupAggregator(ag)

	up := photo("f1", "")
	up.Message.MediaGroupID = "album"
	require.NoError(t, h.HandleUpdate(context.Background(), up))
	assert.Empty(t, tg.downloads)

	ag.Stop()
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"f1"}, groups[0].FileIDs)
}
