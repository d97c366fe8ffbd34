package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// botAPI 本包用到的 Bot API 子集，测试中可替换为假实现
type botAPI interface {
	ForwardMessage(ctx context.Context, params *bot.ForwardMessageParams) (*botModels.Message, error)
	CopyMessage(ctx context.Context, params *bot.CopyMessageParams) (*botModels.MessageID, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	GetFile(ctx context.Context, params *bot.GetFileParams) (*botModels.File, error)
	FileDownloadLink(file *botModels.File) string

	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botModels.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*botModels.Message, error)

	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*botModels.Message, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*botModels.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*botModels.Message, error)
	SendAudio(ctx context.Context, params *bot.SendAudioParams) (*botModels.Message, error)
	SendVoice(ctx context.Context, params *bot.SendVoiceParams) (*botModels.Message, error)
	SendVideoNote(ctx context.Context, params *bot.SendVideoNoteParams) (*botModels.Message, error)
	SendSticker(ctx context.Context, params *bot.SendStickerParams) (*botModels.Message, error)
	SendAnimation(ctx context.Context, params *bot.SendAnimationParams) (*botModels.Message, error)
	SendPoll(ctx context.Context, params *bot.SendPollParams) (*botModels.Message, error)
	SendContact(ctx context.Context, params *bot.SendContactParams) (*botModels.Message, error)
	SendLocation(ctx context.Context, params *bot.SendLocationParams) (*botModels.Message, error)
	SendVenue(ctx context.Context, params *bot.SendVenueParams) (*botModels.Message, error)
	SendDice(ctx context.Context, params *bot.SendDiceParams) (*botModels.Message, error)
}

var _ botAPI = (*bot.Bot)(nil)
