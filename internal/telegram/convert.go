package telegram

import (
	"strconv"
	"strings"

	"channel_migrator/internal/migration"

	botModels "github.com/go-telegram/bot/models"
)

// chatID 将频道引用转换为 Bot API 接受的 chat_id（数字 ID 或 @username）
func chatID(ref migration.ChannelRef) any {
	s := strings.TrimSpace(string(ref))
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id
	}
	if s != "" && !strings.HasPrefix(s, "@") {
		return "@" + s
	}
	return s
}

// toMigrationMessage 在拉取时一次性确定内容类型
func toMigrationMessage(msg *botModels.Message, channel migration.ChannelRef, id int64) *migration.Message {
	return &migration.Message{
		ID:           id,
		Chat:         channel,
		MediaGroupID: msg.MediaGroupID,
		Content:      toContent(msg),
	}
}

func toContent(msg *botModels.Message) migration.Content {
	c := migration.Content{
		Text:            msg.Text,
		Entities:        toEntities(msg.Entities),
		Caption:         msg.Caption,
		CaptionEntities: toEntities(msg.CaptionEntities),
	}
	c.Media.HasSpoiler = msg.HasMediaSpoiler

	switch {
	case len(msg.Photo) > 0:
		// 最后一个尺寸最大
		p := msg.Photo[len(msg.Photo)-1]
		c.Kind = migration.KindPhoto
		c.File = &migration.FileRef{FileID: p.FileID, FileUniqueID: p.FileUniqueID, Size: int64(p.FileSize)}
		c.Media.Width, c.Media.Height = p.Width, p.Height
	case msg.Animation != nil:
		// 动图消息同时带有 document 字段，需先于 document 判断
		a := msg.Animation
		c.Kind = migration.KindAnimation
		c.File = &migration.FileRef{FileID: a.FileID, FileUniqueID: a.FileUniqueID, FileName: a.FileName, MimeType: a.MimeType, Size: int64(a.FileSize)}
		c.Media.Width, c.Media.Height, c.Media.Duration = a.Width, a.Height, a.Duration
	case msg.Video != nil:
		v := msg.Video
		c.Kind = migration.KindVideo
		c.File = &migration.FileRef{FileID: v.FileID, FileUniqueID: v.FileUniqueID, FileName: v.FileName, MimeType: v.MimeType, Size: int64(v.FileSize)}
		c.Media.Width, c.Media.Height, c.Media.Duration = v.Width, v.Height, v.Duration
	case msg.Document != nil:
		d := msg.Document
		c.Kind = migration.KindDocument
		c.File = &migration.FileRef{FileID: d.FileID, FileUniqueID: d.FileUniqueID, FileName: d.FileName, MimeType: d.MimeType, Size: int64(d.FileSize)}
	case msg.Audio != nil:
		a := msg.Audio
		c.Kind = migration.KindAudio
		c.File = &migration.FileRef{FileID: a.FileID, FileUniqueID: a.FileUniqueID, FileName: a.FileName, MimeType: a.MimeType, Size: int64(a.FileSize)}
		c.Media.Duration, c.Media.Performer, c.Media.Title = a.Duration, a.Performer, a.Title
	case msg.Voice != nil:
		v := msg.Voice
		c.Kind = migration.KindVoice
		c.File = &migration.FileRef{FileID: v.FileID, FileUniqueID: v.FileUniqueID, MimeType: v.MimeType, Size: int64(v.FileSize)}
		c.Media.Duration = v.Duration
	case msg.VideoNote != nil:
		v := msg.VideoNote
		c.Kind = migration.KindVideoNote
		c.File = &migration.FileRef{FileID: v.FileID, FileUniqueID: v.FileUniqueID, Size: int64(v.FileSize)}
		c.Media.Duration, c.Media.Length = v.Duration, v.Length
	case msg.Sticker != nil:
		s := msg.Sticker
		c.Kind = migration.KindSticker
		c.File = &migration.FileRef{FileID: s.FileID, FileUniqueID: s.FileUniqueID, Size: int64(s.FileSize)}
		c.Media.Width, c.Media.Height, c.Media.Emoji = s.Width, s.Height, s.Emoji
	case msg.Poll != nil:
		c.Kind = migration.KindPoll
		c.Poll = toPoll(msg.Poll)
	case msg.Venue != nil:
		// venue 消息同时带有 location 字段，坐标取自 location
		c.Kind = migration.KindVenue
		c.Venue = &migration.Venue{
			Title:          msg.Venue.Title,
			Address:        msg.Venue.Address,
			FoursquareID:   msg.Venue.FoursquareID,
			FoursquareType: msg.Venue.FoursquareType,
		}
		if msg.Location != nil {
			c.Venue.Location = toLocation(msg.Location)
		}
	case msg.Location != nil:
		c.Kind = migration.KindLocation
		loc := toLocation(msg.Location)
		c.Location = &loc
	case msg.Contact != nil:
		c.Kind = migration.KindContact
		c.Contact = &migration.Contact{
			PhoneNumber: msg.Contact.PhoneNumber,
			FirstName:   msg.Contact.FirstName,
			LastName:    msg.Contact.LastName,
			VCard:       msg.Contact.VCard,
		}
	case msg.Dice != nil:
		c.Kind = migration.KindDice
		c.Dice = &migration.Dice{Emoji: msg.Dice.Emoji, Value: msg.Dice.Value}
	case msg.Game != nil:
		c.Kind = migration.KindUnsupported
		c.Unsupported = "game"
	case msg.Invoice != nil:
		c.Kind = migration.KindUnsupported
		c.Unsupported = "invoice"
	case msg.Text != "":
		c.Kind = migration.KindText
	default:
		c.Kind = migration.KindUnsupported
		c.Unsupported = "service message"
	}
	return c
}

func toLocation(l *botModels.Location) migration.Location {
	return migration.Location{
		Latitude:             l.Latitude,
		Longitude:            l.Longitude,
		HorizontalAccuracy:   l.HorizontalAccuracy,
		LivePeriod:           l.LivePeriod,
		Heading:              l.Heading,
		ProximityAlertRadius: l.ProximityAlertRadius,
	}
}

func toPoll(p *botModels.Poll) *migration.Poll {
	poll := &migration.Poll{
		Question:              p.Question,
		IsAnonymous:           p.IsAnonymous,
		Type:                  string(p.Type),
		AllowsMultipleAnswers: p.AllowsMultipleAnswers,
		CorrectOptionID:       p.CorrectOptionID,
		Explanation:           p.Explanation,
		ExplanationEntities:   toEntities(p.ExplanationEntities),
	}
	for _, opt := range p.Options {
		poll.Options = append(poll.Options, opt.Text)
	}
	return poll
}

func toEntities(entities []botModels.MessageEntity) []migration.Entity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]migration.Entity, 0, len(entities))
	for _, e := range entities {
		entity := migration.Entity{
			Type:          string(e.Type),
			Offset:        e.Offset,
			Length:        e.Length,
			URL:           e.URL,
			Language:      e.Language,
			CustomEmojiID: e.CustomEmojiID,
		}
		if e.User != nil {
			entity.UserID = e.User.ID
		}
		out = append(out, entity)
	}
	return out
}

func fromEntities(entities []migration.Entity) []botModels.MessageEntity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]botModels.MessageEntity, 0, len(entities))
	for _, e := range entities {
		entity := botModels.MessageEntity{
			Type:          botModels.MessageEntityType(e.Type),
			Offset:        e.Offset,
			Length:        e.Length,
			URL:           e.URL,
			Language:      e.Language,
			CustomEmojiID: e.CustomEmojiID,
		}
		if e.UserID != 0 {
			entity.User = &botModels.User{ID: e.UserID}
		}
		out = append(out, entity)
	}
	return out
}
