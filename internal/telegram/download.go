package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"channel_migrator/internal/logger"
	"channel_migrator/internal/migration"

	"github.com/go-telegram/bot"
	"github.com/google/uuid"
)

// openRemote 打开文件下载流，调用方负责关闭
func (c *Client) openRemote(ctx context.Context, ref *migration.FileRef) (io.ReadCloser, error) {
	if ref == nil || ref.FileID == "" {
		return nil, fmt.Errorf("%w: missing file reference", migration.ErrUnsupportedContent)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	file, err := c.api.GetFile(ctx, &bot.GetFileParams{FileID: ref.FileID})
	if err != nil {
		return nil, classifyError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api.FileDownloadLink(file), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", ref.FileUniqueID, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusRequestEntityTooLarge {
			return nil, fmt.Errorf("%w: download rejected for %s", migration.ErrFileTooLarge, ref.FileUniqueID)
		}
		return nil, fmt.Errorf("download file %s: unexpected status %d", ref.FileUniqueID, resp.StatusCode)
	}
	return resp.Body, nil
}

// download 下载到临时文件，返回已定位到开头的文件与清理函数
func (c *Client) download(ctx context.Context, ref *migration.FileRef) (*os.File, func(), error) {
	body, err := c.openRemote(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	defer body.Close()

	dir := c.cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "migrator-"+uuid.NewString())

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		file.Close()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.L().Warnf("Failed to remove temp file %s: %v", path, err)
		}
	}

	written, err := io.Copy(file, body)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("download file %s: %w", ref.FileUniqueID, err)
	}
	if ref.Size > 0 && written != ref.Size {
		cleanup()
		return nil, nil, fmt.Errorf("download file %s: got %d bytes, expected %d", ref.FileUniqueID, written, ref.Size)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("rewind temp file: %w", err)
	}

	logger.L().Debugf("Downloaded %s (%d bytes) to %s", ref.FileUniqueID, written, path)
	return file, cleanup, nil
}
