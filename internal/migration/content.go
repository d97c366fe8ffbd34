package migration

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// ChannelRef 频道引用（@username 或数字 ID）
type ChannelRef string

// ContentKind 消息内容类型（在拉取时确定一次，下游只根据该值分支）
type ContentKind string

const (
	KindText        ContentKind = "text"
	KindPhoto       ContentKind = "photo"
	KindVideo       ContentKind = "video"
	KindDocument    ContentKind = "document"
	KindAudio       ContentKind = "audio"
	KindVoice       ContentKind = "voice"
	KindVideoNote   ContentKind = "video_note"
	KindSticker     ContentKind = "sticker"
	KindAnimation   ContentKind = "animation"
	KindPoll        ContentKind = "poll"
	KindContact     ContentKind = "contact"
	KindLocation    ContentKind = "location"
	KindVenue       ContentKind = "venue"
	KindDice        ContentKind = "dice"
	KindUnsupported ContentKind = "unsupported"
)

// HasPayload 是否携带需要下载的文件
func (k ContentKind) HasPayload() bool {
	switch k {
	case KindPhoto, KindVideo, KindDocument, KindAudio, KindVoice,
		KindVideoNote, KindSticker, KindAnimation:
		return true
	default:
		return false
	}
}

// Resendable 是否可以重新发送（服务消息、游戏、发票等只能引用转发）
func (k ContentKind) Resendable() bool {
	return k != KindUnsupported && k != ""
}

// Entity 格式化实体
type Entity struct {
	Type          string
	Offset        int
	Length        int
	URL           string
	Language      string
	CustomEmojiID string
	UserID        int64
}

// FileRef 文件引用
type FileRef struct {
	FileID       string
	FileUniqueID string
	FileName     string
	MimeType     string
	Size         int64
}

// MediaMeta 各类型媒体的附加元数据
type MediaMeta struct {
	Duration   int
	Width      int
	Height     int
	Length     int // video note 边长
	Performer  string
	Title      string
	Emoji      string
	HasSpoiler bool
}

// Poll 投票
type Poll struct {
	Question              string
	Options               []string
	IsAnonymous           bool
	Type                  string
	AllowsMultipleAnswers bool
	CorrectOptionID       int
	Explanation           string
	ExplanationEntities   []Entity
}

// Contact 联系人
type Contact struct {
	PhoneNumber string
	FirstName   string
	LastName    string
	VCard       string
}

// Location 位置
type Location struct {
	Latitude             float64
	Longitude            float64
	HorizontalAccuracy   float64
	LivePeriod           int
	Heading              int
	ProximityAlertRadius int
}

// Venue 地点
type Venue struct {
	Location       Location
	Title          string
	Address        string
	FoursquareID   string
	FoursquareType string
}

// Dice 骰子
type Dice struct {
	Emoji string
	Value int
}

// Content 消息内容，Kind 为判别字段，只有与 Kind 对应的字段有意义
type Content struct {
	Kind ContentKind

	Text            string
	Entities        []Entity
	Caption         string
	CaptionEntities []Entity

	File  *FileRef
	Media MediaMeta

	Poll     *Poll
	Contact  *Contact
	Location *Location
	Venue    *Venue
	Dice     *Dice

	// Unsupported 不可重发内容的原始类型描述（如 game / invoice）
	Unsupported string
}

// Message 源频道消息
type Message struct {
	ID           int64
	Chat         ChannelRef
	Date         time.Time
	MediaGroupID string
	Content      Content
}

// Kind 内容类型
func (m *Message) Kind() ContentKind {
	return m.Content.Kind
}

// FileSize 文件大小（无文件时为 0）
func (m *Message) FileSize() int64 {
	if m.Content.File == nil {
		return 0
	}
	return m.Content.File.Size
}

// FileUniqueID 平台分配的文件唯一 ID
func (m *Message) FileUniqueID() string {
	if m.Content.File == nil {
		return ""
	}
	return m.Content.File.FileUniqueID
}

// Receipt 投递回执
type Receipt struct {
	TargetMessageID int64
}

// Fingerprint 去重指纹
type Fingerprint struct {
	FileUniqueID string
	ContentHash  string
}

// Empty 没有任何可用标识
func (f Fingerprint) Empty() bool {
	return f.FileUniqueID == "" && f.ContentHash == ""
}

// FingerprintOf 计算消息指纹
// 媒体直接使用平台文件唯一 ID；没有文件 ID 的内容才计算摘要，
// 否则同一说明文字的多个不同文件会被误判为重复
func FingerprintOf(m *Message) Fingerprint {
	if id := m.FileUniqueID(); id != "" {
		return Fingerprint{FileUniqueID: id}
	}

	c := m.Content
	switch c.Kind {
	case KindText:
		if c.Text == "" {
			return Fingerprint{}
		}
		return Fingerprint{ContentHash: contentDigest(c.Text)}
	case KindPoll:
		if c.Poll == nil {
			return Fingerprint{}
		}
		parts := append([]string{"poll", c.Poll.Question}, c.Poll.Options...)
		return Fingerprint{ContentHash: contentDigest(parts...)}
	case KindContact:
		if c.Contact == nil {
			return Fingerprint{}
		}
		return Fingerprint{ContentHash: contentDigest("contact", c.Contact.PhoneNumber, c.Contact.FirstName, c.Contact.LastName)}
	case KindLocation:
		if c.Location == nil {
			return Fingerprint{}
		}
		return Fingerprint{ContentHash: contentDigest("location", formatCoord(c.Location.Latitude), formatCoord(c.Location.Longitude))}
	case KindVenue:
		if c.Venue == nil {
			return Fingerprint{}
		}
		return Fingerprint{ContentHash: contentDigest("venue", c.Venue.Title, c.Venue.Address,
			formatCoord(c.Venue.Location.Latitude), formatCoord(c.Venue.Location.Longitude))}
	case KindDice, KindUnsupported:
		// 骰子每次发送结果随机，没有稳定标识
		return Fingerprint{}
	}

	if c.Caption != "" {
		return Fingerprint{ContentHash: contentDigest(c.Caption)}
	}
	return Fingerprint{}
}

func contentDigest(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
