package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"channel_migrator/internal/config"
	"channel_migrator/internal/logger"
	"channel_migrator/internal/migration"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// 引用转发模式，取值与 FORWARD_MODE 配置一致
const (
	ForwardModeForward = config.ForwardModeForward
	ForwardModeCopy    = config.ForwardModeCopy
)

// ClientConfig 远端客户端配置
type ClientConfig struct {
	StagingChatID int64        // 拉取源消息时的中转聊天
	ForwardMode   string       // forward 保留来源标记，copy 隐藏
	TempDir       string       // 下载临时目录，为空时使用系统临时目录
	HTTPClient    *http.Client // 文件下载使用
	Limiter       *RateLimiter // 全局 API 速率限制，可为 nil
}

// Client 基于 Bot API 的 migration.RemoteClient 实现
//
// Bot API 没有按 ID 读取频道消息的接口，Fetch 将源消息转发到中转聊天读取内容后删除副本
type Client struct {
	api     botAPI
	cfg     ClientConfig
	http    *http.Client
	limiter *RateLimiter
}

var (
	_ migration.RemoteClient      = (*Client)(nil)
	_ migration.ChunkedTransferer = (*Client)(nil)
)

// NewClient 创建远端客户端
func NewClient(b *bot.Bot, cfg ClientConfig) (*Client, error) {
	return newClient(b, cfg)
}

func newClient(api botAPI, cfg ClientConfig) (*Client, error) {
	if cfg.StagingChatID == 0 {
		return nil, fmt.Errorf("staging chat id cannot be empty")
	}
	switch cfg.ForwardMode {
	case "":
		cfg.ForwardMode = ForwardModeForward
	case ForwardModeForward, ForwardModeCopy:
	default:
		return nil, fmt.Errorf("invalid forward mode %q", cfg.ForwardMode)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		api:     api,
		cfg:     cfg,
		http:    httpClient,
		limiter: cfg.Limiter,
	}, nil
}

// Fetch 实现 migration.RemoteClient
func (c *Client) Fetch(ctx context.Context, channel migration.ChannelRef, messageID int64) (*migration.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	probe, err := c.api.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:              c.cfg.StagingChatID,
		FromChatID:          chatID(channel),
		MessageID:           int(messageID),
		DisableNotification: true,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if probe == nil {
		return nil, fmt.Errorf("empty response fetching message %d", messageID)
	}

	message := toMigrationMessage(probe, channel, messageID)
	c.discardProbe(ctx, probe.ID)
	return message, nil
}

// discardProbe 删除中转聊天中的副本，失败只记录日志
func (c *Client) discardProbe(ctx context.Context, probeID int) {
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}
	if _, err := c.api.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    c.cfg.StagingChatID,
		MessageID: probeID,
	}); err != nil {
		logger.L().Warnf("Failed to delete staging copy: chat=%d message_id=%d err=%v", c.cfg.StagingChatID, probeID, err)
	}
}

// Forward 实现 migration.RemoteClient
func (c *Client) Forward(ctx context.Context, message *migration.Message, target migration.ChannelRef) (migration.Receipt, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return migration.Receipt{}, err
	}

	if c.cfg.ForwardMode == ForwardModeCopy {
		copied, err := c.api.CopyMessage(ctx, &bot.CopyMessageParams{
			ChatID:     chatID(target),
			FromChatID: chatID(message.Chat),
			MessageID:  int(message.ID),
		})
		if err != nil {
			return migration.Receipt{}, classifyError(err)
		}
		return receiptOf(copied.ID), nil
	}

	sent, err := c.api.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:     chatID(target),
		FromChatID: chatID(message.Chat),
		MessageID:  int(message.ID),
	})
	if err != nil {
		return migration.Receipt{}, classifyError(err)
	}
	return receiptOf(sent.ID), nil
}

// Reupload 实现 migration.RemoteClient：文件先落盘再上传
func (c *Client) Reupload(ctx context.Context, message *migration.Message, target migration.ChannelRef) (migration.Receipt, error) {
	if !message.Kind().HasPayload() {
		return c.send(ctx, message, target, nil)
	}

	file, cleanup, err := c.download(ctx, message.Content.File)
	if err != nil {
		return migration.Receipt{}, err
	}
	defer cleanup()

	upload := &botModels.InputFileUpload{Filename: uploadName(message), Data: file}
	return c.send(ctx, message, target, upload)
}

// TransferChunked 实现 migration.ChunkedTransferer：下载流直接作为上传内容，不落盘
func (c *Client) TransferChunked(ctx context.Context, message *migration.Message, target migration.ChannelRef) (migration.Receipt, error) {
	if !message.Kind().HasPayload() {
		return migration.Receipt{}, fmt.Errorf("%w: %s has no file", migration.ErrUnsupportedContent, message.Kind())
	}

	body, err := c.openRemote(ctx, message.Content.File)
	if err != nil {
		return migration.Receipt{}, err
	}
	defer body.Close()

	upload := &botModels.InputFileUpload{Filename: uploadName(message), Data: body}
	return c.send(ctx, message, target, upload)
}

// send 按内容类型调用对应的 send* 接口
func (c *Client) send(ctx context.Context, message *migration.Message, target migration.ChannelRef, upload botModels.InputFile) (migration.Receipt, error) {
	content := message.Content
	if content.Kind.HasPayload() && upload == nil || !hasBody(content) {
		return migration.Receipt{}, fmt.Errorf("%w: incomplete %s content", migration.ErrUnsupportedContent, content.Kind)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return migration.Receipt{}, err
	}

	to := chatID(target)
	caption := content.Caption
	captionEntities := fromEntities(content.CaptionEntities)
	media := content.Media

	var (
		sent *botModels.Message
		err  error
	)
	switch content.Kind {
	case migration.KindText:
		sent, err = c.api.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:   to,
			Text:     content.Text,
			Entities: fromEntities(content.Entities),
		})
	case migration.KindPhoto:
		sent, err = c.api.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID: to, Photo: upload,
			Caption: caption, CaptionEntities: captionEntities,
			HasSpoiler: media.HasSpoiler,
		})
	case migration.KindVideo:
		sent, err = c.api.SendVideo(ctx, &bot.SendVideoParams{
			ChatID: to, Video: upload,
			Duration: media.Duration, Width: media.Width, Height: media.Height,
			Caption: caption, CaptionEntities: captionEntities,
			HasSpoiler: media.HasSpoiler, SupportsStreaming: true,
		})
	case migration.KindDocument:
		sent, err = c.api.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID: to, Document: upload,
			Caption: caption, CaptionEntities: captionEntities,
		})
	case migration.KindAudio:
		sent, err = c.api.SendAudio(ctx, &bot.SendAudioParams{
			ChatID: to, Audio: upload,
			Caption: caption, CaptionEntities: captionEntities,
			Duration: media.Duration, Performer: media.Performer, Title: media.Title,
		})
	case migration.KindVoice:
		sent, err = c.api.SendVoice(ctx, &bot.SendVoiceParams{
			ChatID: to, Voice: upload,
			Caption: caption, CaptionEntities: captionEntities,
			Duration: media.Duration,
		})
	case migration.KindVideoNote:
		sent, err = c.api.SendVideoNote(ctx, &bot.SendVideoNoteParams{
			ChatID: to, VideoNote: upload,
			Duration: media.Duration, Length: media.Length,
		})
	case migration.KindSticker:
		sent, err = c.api.SendSticker(ctx, &bot.SendStickerParams{
			ChatID: to, Sticker: upload, Emoji: media.Emoji,
		})
	case migration.KindAnimation:
		sent, err = c.api.SendAnimation(ctx, &bot.SendAnimationParams{
			ChatID: to, Animation: upload,
			Duration: media.Duration, Width: media.Width, Height: media.Height,
			Caption: caption, CaptionEntities: captionEntities,
			HasSpoiler: media.HasSpoiler,
		})
	case migration.KindPoll:
		sent, err = c.api.SendPoll(ctx, pollParams(to, content.Poll))
	case migration.KindContact:
		sent, err = c.api.SendContact(ctx, &bot.SendContactParams{
			ChatID:      to,
			PhoneNumber: content.Contact.PhoneNumber,
			FirstName:   content.Contact.FirstName,
			LastName:    content.Contact.LastName,
			VCard:       content.Contact.VCard,
		})
	case migration.KindLocation:
		loc := content.Location
		sent, err = c.api.SendLocation(ctx, &bot.SendLocationParams{
			ChatID:               to,
			Latitude:             loc.Latitude,
			Longitude:            loc.Longitude,
			HorizontalAccuracy:   loc.HorizontalAccuracy,
			LivePeriod:           loc.LivePeriod,
			Heading:              loc.Heading,
			ProximityAlertRadius: loc.ProximityAlertRadius,
		})
	case migration.KindVenue:
		venue := content.Venue
		sent, err = c.api.SendVenue(ctx, &bot.SendVenueParams{
			ChatID:         to,
			Latitude:       venue.Location.Latitude,
			Longitude:      venue.Location.Longitude,
			Title:          venue.Title,
			Address:        venue.Address,
			FoursquareID:   venue.FoursquareID,
			FoursquareType: venue.FoursquareType,
		})
	case migration.KindDice:
		sent, err = c.api.SendDice(ctx, &bot.SendDiceParams{ChatID: to, Emoji: content.Dice.Emoji})
	default:
		return migration.Receipt{}, fmt.Errorf("%w: %s", migration.ErrUnsupportedContent, describeUnsupported(content))
	}

	if err != nil {
		return migration.Receipt{}, classifyError(err)
	}
	if sent == nil {
		return migration.Receipt{}, fmt.Errorf("empty response sending %s", content.Kind)
	}
	return receiptOf(sent.ID), nil
}

func pollParams(to any, poll *migration.Poll) *bot.SendPollParams {
	options := make([]botModels.InputPollOption, 0, len(poll.Options))
	for _, text := range poll.Options {
		options = append(options, botModels.InputPollOption{Text: text})
	}
	anonymous := poll.IsAnonymous
	return &bot.SendPollParams{
		ChatID:                to,
		Question:              poll.Question,
		Options:               options,
		IsAnonymous:           &anonymous,
		Type:                  poll.Type,
		AllowsMultipleAnswers: poll.AllowsMultipleAnswers,
		CorrectOptionID:       poll.CorrectOptionID,
		Explanation:           poll.Explanation,
		ExplanationEntities:   fromEntities(poll.ExplanationEntities),
	}
}

// hasBody 结构化内容是否带有对应字段
func hasBody(content migration.Content) bool {
	switch content.Kind {
	case migration.KindPoll:
		return content.Poll != nil
	case migration.KindContact:
		return content.Contact != nil
	case migration.KindLocation:
		return content.Location != nil
	case migration.KindVenue:
		return content.Venue != nil
	case migration.KindDice:
		return content.Dice != nil
	}
	return true
}

func receiptOf(id int) migration.Receipt {
	return migration.Receipt{TargetMessageID: int64(id)}
}

func describeUnsupported(content migration.Content) string {
	if content.Unsupported != "" {
		return content.Unsupported
	}
	return string(content.Kind)
}

var defaultExtensions = map[migration.ContentKind]string{
	migration.KindPhoto:     ".jpg",
	migration.KindVideo:     ".mp4",
	migration.KindAnimation: ".mp4",
	migration.KindVideoNote: ".mp4",
	migration.KindAudio:     ".mp3",
	migration.KindVoice:     ".ogg",
	migration.KindSticker:   ".webp",
	migration.KindDocument:  ".bin",
}

// uploadName 上传时使用的文件名，优先保留原文件名
func uploadName(message *migration.Message) string {
	if file := message.Content.File; file != nil && strings.TrimSpace(file.FileName) != "" {
		return file.FileName
	}
	return fmt.Sprintf("%s_%d%s", message.Kind(), message.ID, defaultExtensions[message.Kind()])
}
