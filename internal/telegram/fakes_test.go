package telegram

import (
	"context"
	"io"
	"sync"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// sentCall 一次 send* 调用
type sentCall struct {
	Method   string
	ChatID   any
	Text     string
	Filename string
	Data     []byte
}

type fakeAPI struct {
	mu     sync.Mutex
	nextID int

	forwards []*bot.ForwardMessageParams
	copies   []*bot.CopyMessageParams
	deletes  []*bot.DeleteMessageParams
	edits    []*bot.EditMessageTextParams
	sent     []sentCall

	forwardFn func(params *bot.ForwardMessageParams) (*botModels.Message, error)
	copyErr   error
	sendErr   error
	editErr   error
	getFile   func(fileID string) (*botModels.File, error)
	linkBase  string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{nextID: 1000}
}

func (f *fakeAPI) newID() int {
	f.nextID++
	return f.nextID
}

func (f *fakeAPI) ForwardMessage(_ context.Context, params *bot.ForwardMessageParams) (*botModels.Message, error) {
	f.mu.Lock()
	f.forwards = append(f.forwards, params)
	fn := f.forwardFn
	f.mu.Unlock()

	if fn != nil {
		return fn(params)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &botModels.Message{ID: f.newID()}, nil
}

func (f *fakeAPI) CopyMessage(_ context.Context, params *bot.CopyMessageParams) (*botModels.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, params)
	if f.copyErr != nil {
		return nil, f.copyErr
	}
	return &botModels.MessageID{ID: f.newID()}, nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, params *bot.DeleteMessageParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, params)
	return true, nil
}

func (f *fakeAPI) GetFile(_ context.Context, params *bot.GetFileParams) (*botModels.File, error) {
	if f.getFile != nil {
		return f.getFile(params.FileID)
	}
	return &botModels.File{FileID: params.FileID, FilePath: "files/" + params.FileID}, nil
}

func (f *fakeAPI) FileDownloadLink(file *botModels.File) string {
	return f.linkBase + "/" + file.FilePath
}

func (f *fakeAPI) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*botModels.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, params)
	if f.editErr != nil {
		return nil, f.editErr
	}
	return &botModels.Message{ID: params.MessageID}, nil
}

func (f *fakeAPI) record(method string, chatID any, text string, upload botModels.InputFile) (*botModels.Message, error) {
	call := sentCall{Method: method, ChatID: chatID, Text: text}
	if u, ok := upload.(*botModels.InputFileUpload); ok {
		call.Filename = u.Filename
		call.Data, _ = io.ReadAll(u.Data)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, call)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &botModels.Message{ID: f.newID()}, nil
}

func (f *fakeAPI) sentCalls() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.sent...)
}

func (f *fakeAPI) SendMessage(_ context.Context, p *bot.SendMessageParams) (*botModels.Message, error) {
	return f.record("sendMessage", p.ChatID, p.Text, nil)
}

func (f *fakeAPI) SendPhoto(_ context.Context, p *bot.SendPhotoParams) (*botModels.Message, error) {
	return f.record("sendPhoto", p.ChatID, p.Caption, p.Photo)
}

func (f *fakeAPI) SendVideo(_ context.Context, p *bot.SendVideoParams) (*botModels.Message, error) {
	return f.record("sendVideo", p.ChatID, p.Caption, p.Video)
}

func (f *fakeAPI) SendDocument(_ context.Context, p *bot.SendDocumentParams) (*botModels.Message, error) {
	return f.record("sendDocument", p.ChatID, p.Caption, p.Document)
}

func (f *fakeAPI) SendAudio(_ context.Context, p *bot.SendAudioParams) (*botModels.Message, error) {
	return f.record("sendAudio", p.ChatID, p.Caption, p.Audio)
}

func (f *fakeAPI) SendVoice(_ context.Context, p *bot.SendVoiceParams) (*botModels.Message, error) {
	return f.record("sendVoice", p.ChatID, p.Caption, p.Voice)
}

func (f *fakeAPI) SendVideoNote(_ context.Context, p *bot.SendVideoNoteParams) (*botModels.Message, error) {
	return f.record("sendVideoNote", p.ChatID, "", p.VideoNote)
}

func (f *fakeAPI) SendSticker(_ context.Context, p *bot.SendStickerParams) (*botModels.Message, error) {
	return f.record("sendSticker", p.ChatID, p.Emoji, p.Sticker)
}

func (f *fakeAPI) SendAnimation(_ context.Context, p *bot.SendAnimationParams) (*botModels.Message, error) {
	return f.record("sendAnimation", p.ChatID, p.Caption, p.Animation)
}

func (f *fakeAPI) SendPoll(_ context.Context, p *bot.SendPollParams) (*botModels.Message, error) {
	return f.record("sendPoll", p.ChatID, p.Question, nil)
}

func (f *fakeAPI) SendContact(_ context.Context, p *bot.SendContactParams) (*botModels.Message, error) {
	return f.record("sendContact", p.ChatID, p.PhoneNumber, nil)
}

func (f *fakeAPI) SendLocation(_ context.Context, p *bot.SendLocationParams) (*botModels.Message, error) {
	return f.record("sendLocation", p.ChatID, "", nil)
}

func (f *fakeAPI) SendVenue(_ context.Context, p *bot.SendVenueParams) (*botModels.Message, error) {
	return f.record("sendVenue", p.ChatID, p.Title, nil)
}

func (f *fakeAPI) SendDice(_ context.Context, p *bot.SendDiceParams) (*botModels.Message, error) {
	return f.record("sendDice", p.ChatID, p.Emoji, nil)
}

var _ botAPI = (*fakeAPI)(nil)
