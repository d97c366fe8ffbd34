package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"channel_migrator/internal/config"
	"channel_migrator/internal/migration"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stagingChat int64 = -1009999

func newTestClient(t *testing.T, api *fakeAPI, mode string) *Client {
	t.Helper()
	c, err := newClient(api, ClientConfig{
		StagingChatID: stagingChat,
		ForwardMode:   mode,
		TempDir:       t.TempDir(),
	})
	require.NoError(t, err)
	return c
}

// fileServer 按路径返回固定内容
func fileServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientValidation(t *testing.T) {
	api := newFakeAPI()

	_, err := newClient(api, ClientConfig{})
	assert.Error(t, err)

	_, err = newClient(api, ClientConfig{StagingChatID: stagingChat, ForwardMode: "mirror"})
	assert.Error(t, err)

	c, err := newClient(api, ClientConfig{StagingChatID: stagingChat})
	require.NoError(t, err)
	assert.Equal(t, ForwardModeForward, c.cfg.ForwardMode)

	for _, mode := range []string{config.ForwardModeForward, config.ForwardModeCopy} {
		c, err := newClient(api, ClientConfig{StagingChatID: stagingChat, ForwardMode: mode})
		require.NoError(t, err, mode)
		assert.Equal(t, mode, c.cfg.ForwardMode)
	}
}

func TestChatID(t *testing.T) {
	assert.Equal(t, int64(-1001234), chatID("-1001234"))
	assert.Equal(t, "@source", chatID("@source"))
	assert.Equal(t, "@source", chatID("source"))
	assert.Equal(t, "@source", chatID("  source "))
}

func TestFetchReadsThroughStagingChat(t *testing.T) {
	api := newFakeAPI()
	api.forwardFn = func(params *bot.ForwardMessageParams) (*botModels.Message, error) {
		return &botModels.Message{
			ID:      555,
			Caption: "sunset",
			Photo: []botModels.PhotoSize{
				{FileID: "small", FileUniqueID: "u-small", Width: 90, Height: 90},
				{FileID: "large", FileUniqueID: "u-large", Width: 1280, Height: 720, FileSize: 2048},
			},
		}, nil
	}
	c := newTestClient(t, api, ForwardModeForward)

	msg, err := c.Fetch(context.Background(), "@source", 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), msg.ID)
	assert.Equal(t, migration.ChannelRef("@source"), msg.Chat)
	assert.Equal(t, migration.KindPhoto, msg.Kind())
	assert.Equal(t, "u-large", msg.FileUniqueID())
	assert.Equal(t, int64(2048), msg.FileSize())
	assert.Equal(t, "sunset", msg.Content.Caption)

	require.Len(t, api.forwards, 1)
	assert.Equal(t, stagingChat, api.forwards[0].ChatID)
	assert.Equal(t, "@source", api.forwards[0].FromChatID)
	assert.Equal(t, 42, api.forwards[0].MessageID)

	require.Len(t, api.deletes, 1)
	assert.Equal(t, stagingChat, api.deletes[0].ChatID)
	assert.Equal(t, 555, api.deletes[0].MessageID)
}

func TestFetchMissingMessage(t *testing.T) {
	api := newFakeAPI()
	api.forwardFn = func(*bot.ForwardMessageParams) (*botModels.Message, error) {
		return nil, fmt.Errorf("%w, Bad Request: message to forward not found", bot.ErrorBadRequest)
	}
	c := newTestClient(t, api, ForwardModeForward)

	_, err := c.Fetch(context.Background(), "@source", 7)
	assert.ErrorIs(t, err, migration.ErrNotFound)
	assert.Empty(t, api.deletes)
}

func TestForwardModes(t *testing.T) {
	message := &migration.Message{ID: 9, Chat: "-100111", Content: migration.Content{Kind: migration.KindText, Text: "hi"}}

	t.Run("forward", func(t *testing.T) {
		api := newFakeAPI()
		c := newTestClient(t, api, ForwardModeForward)

		receipt, err := c.Forward(context.Background(), message, "@target")
		require.NoError(t, err)
		assert.NotZero(t, receipt.TargetMessageID)
		require.Len(t, api.forwards, 1)
		assert.Equal(t, "@target", api.forwards[0].ChatID)
		assert.Equal(t, int64(-100111), api.forwards[0].FromChatID)
		assert.Empty(t, api.copies)
	})

	t.Run("copy", func(t *testing.T) {
		api := newFakeAPI()
		c := newTestClient(t, api, ForwardModeCopy)

		receipt, err := c.Forward(context.Background(), message, "@target")
		require.NoError(t, err)
		assert.NotZero(t, receipt.TargetMessageID)
		require.Len(t, api.copies, 1)
		assert.Equal(t, 9, api.copies[0].MessageID)
		assert.Empty(t, api.forwards)
	})

	t.Run("restricted", func(t *testing.T) {
		api := newFakeAPI()
		api.copyErr = fmt.Errorf("%w, Bad Request: message can't be copied", bot.ErrorBadRequest)
		c := newTestClient(t, api, ForwardModeCopy)

		_, err := c.Forward(context.Background(), message, "@target")
		assert.ErrorIs(t, err, migration.ErrForwardRestricted)
	})
}

func TestReuploadDocument(t *testing.T) {
	api := newFakeAPI()
	srv := fileServer(t, map[string]string{"/files/doc-1": "hello world"})
	api.linkBase = srv.URL

	c := newTestClient(t, api, ForwardModeForward)
	message := &migration.Message{
		ID:   12,
		Chat: "@source",
		Content: migration.Content{
			Kind:    migration.KindDocument,
			Caption: "report",
			File:    &migration.FileRef{FileID: "doc-1", FileUniqueID: "u-doc", FileName: "report.pdf", Size: 11},
		},
	}

	receipt, err := c.Reupload(context.Background(), message, "@target")
	require.NoError(t, err)
	assert.NotZero(t, receipt.TargetMessageID)

	sent := api.sentCalls()
	require.Len(t, sent, 1)
	assert.Equal(t, "sendDocument", sent[0].Method)
	assert.Equal(t, "@target", sent[0].ChatID)
	assert.Equal(t, "report", sent[0].Text)
	assert.Equal(t, "report.pdf", sent[0].Filename)
	assert.Equal(t, "hello world", string(sent[0].Data))

	entries, err := os.ReadDir(c.cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file should be removed after upload")
}

func TestReuploadSizeMismatch(t *testing.T) {
	api := newFakeAPI()
	srv := fileServer(t, map[string]string{"/files/v-1": "short"})
	api.linkBase = srv.URL

	c := newTestClient(t, api, ForwardModeForward)
	message := &migration.Message{
		ID: 3,
		Content: migration.Content{
			Kind: migration.KindVideo,
			File: &migration.FileRef{FileID: "v-1", FileUniqueID: "u-v", Size: 4096},
		},
	}

	_, err := c.Reupload(context.Background(), message, "@target")
	require.Error(t, err)
	assert.Empty(t, api.sentCalls())

	entries, err := os.ReadDir(c.cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReuploadDownloadFailure(t *testing.T) {
	api := newFakeAPI()
	srv := fileServer(t, map[string]string{})
	api.linkBase = srv.URL

	c := newTestClient(t, api, ForwardModeForward)
	message := &migration.Message{
		ID:      4,
		Content: migration.Content{Kind: migration.KindVoice, File: &migration.FileRef{FileID: "gone"}},
	}

	_, err := c.Reupload(context.Background(), message, "@target")
	assert.Error(t, err)
	assert.Empty(t, api.sentCalls())
}

func TestReuploadStructuredContent(t *testing.T) {
	tests := []struct {
		name    string
		content migration.Content
		method  string
		text    string
	}{
		{
			name:    "text keeps entities",
			content: migration.Content{Kind: migration.KindText, Text: "bold", Entities: []migration.Entity{{Type: "bold", Length: 4}}},
			method:  "sendMessage",
			text:    "bold",
		},
		{
			name:    "poll",
			content: migration.Content{Kind: migration.KindPoll, Poll: &migration.Poll{Question: "lunch?", Options: []string{"yes", "no"}, Type: "regular"}},
			method:  "sendPoll",
			text:    "lunch?",
		},
		{
			name:    "contact",
			content: migration.Content{Kind: migration.KindContact, Contact: &migration.Contact{PhoneNumber: "+100", FirstName: "A"}},
			method:  "sendContact",
			text:    "+100",
		},
		{
			name:    "venue",
			content: migration.Content{Kind: migration.KindVenue, Venue: &migration.Venue{Title: "Cafe", Address: "Main st"}},
			method:  "sendVenue",
			text:    "Cafe",
		},
		{
			name:    "dice",
			content: migration.Content{Kind: migration.KindDice, Dice: &migration.Dice{Emoji: "🎲", Value: 4}},
			method:  "sendDice",
			text:    "🎲",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			c := newTestClient(t, api, ForwardModeForward)

			_, err := c.Reupload(context.Background(), &migration.Message{ID: 1, Content: tt.content}, "@target")
			require.NoError(t, err)

			sent := api.sentCalls()
			require.Len(t, sent, 1)
			assert.Equal(t, tt.method, sent[0].Method)
			assert.Equal(t, tt.text, sent[0].Text)
		})
	}
}

func TestReuploadUnsupported(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api, ForwardModeForward)

	cases := []migration.Content{
		{Kind: migration.KindUnsupported, Unsupported: "game"},
		{Kind: migration.KindPoll},
	}
	for _, content := range cases {
		_, err := c.Reupload(context.Background(), &migration.Message{ID: 1, Content: content}, "@target")
		assert.ErrorIs(t, err, migration.ErrUnsupportedContent)
	}
	assert.Empty(t, api.sentCalls())
}

func TestTransferChunkedStreams(t *testing.T) {
	api := newFakeAPI()
	srv := fileServer(t, map[string]string{"/files/big": "0123456789"})
	api.linkBase = srv.URL

	c := newTestClient(t, api, ForwardModeForward)
	message := &migration.Message{
		ID: 77,
		Content: migration.Content{
			Kind: migration.KindVideo,
			File: &migration.FileRef{FileID: "big", FileUniqueID: "u-big", Size: 10},
		},
	}

	_, err := c.TransferChunked(context.Background(), message, "@target")
	require.NoError(t, err)

	sent := api.sentCalls()
	require.Len(t, sent, 1)
	assert.Equal(t, "sendVideo", sent[0].Method)
	assert.Equal(t, "video_77.mp4", sent[0].Filename)
	assert.Equal(t, "0123456789", string(sent[0].Data))

	entries, err := os.ReadDir(c.cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "chunked transfer must not touch disk")
}

func TestTransferChunkedRejectsText(t *testing.T) {
	c := newTestClient(t, newFakeAPI(), ForwardModeForward)
	_, err := c.TransferChunked(context.Background(), &migration.Message{Content: migration.Content{Kind: migration.KindText, Text: "x"}}, "@t")
	assert.True(t, errors.Is(err, migration.ErrUnsupportedContent))
}

func TestDownloadTooLarge(t *testing.T) {
	api := newFakeAPI()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()
	api.linkBase = srv.URL

	c := newTestClient(t, api, ForwardModeForward)
	_, err := c.Reupload(context.Background(), &migration.Message{
		Content: migration.Content{Kind: migration.KindDocument, File: &migration.FileRef{FileID: "huge"}},
	}, "@target")
	assert.ErrorIs(t, err, migration.ErrFileTooLarge)
}
