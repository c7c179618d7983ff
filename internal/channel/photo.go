package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"plantbot/internal/domain"
	"plantbot/internal/metrics"
)

// FileResolver turns an opaque platform file ID into a download URL.
type FileResolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

// PhotoFetcher downloads the bytes of a photo attachment.
type PhotoFetcher struct {
	files  FileResolver
	client *http.Client
}

func NewPhotoFetcher(files FileResolver, client *http.Client) *PhotoFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &PhotoFetcher{files: files, client: client}
}

// Fetch resolves the variant's file ID and downloads it with a plain GET.
// Content type and size are not checked.
func (f *PhotoFetcher) Fetch(ctx context.Context, photo domain.PhotoVariant) ([]byte, error) {
	link, err := f.files.FileURL(ctx, photo.FileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", redactURL(err))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download photo: %w", redactURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download photo: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", redactURL(err))
	}
	metrics.DownloadBytes.Observe(float64(len(data)))
	return data, nil
}

// redactURL drops the request URL from transport errors: Telegram file
// links carry the bot token.
func redactURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
