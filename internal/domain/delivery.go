package domain

import (
	"context"
	"fmt"
)

// Delivery turns a ready image URL into what the caller asked for.
type Delivery interface {
	Name() string
	Deliver(ctx context.Context, key JobKey, imageURL string) (string, error)
}

// URLDelivery hands back the temporary image URL unchanged.
type URLDelivery struct{}

func (URLDelivery) Name() string { return "url" }

func (URLDelivery) Deliver(_ context.Context, _ JobKey, imageURL string) (string, error) {
	return imageURL, nil
}

// FileDelivery downloads the image to Dir as {key}.png.
type FileDelivery struct {
	Dir     string
	Fetcher ImageFetcher
	Store   ImageStore
}

func (d FileDelivery) Name() string { return "file" }

// Deliver streams imageURL into the store. Any failure is an ErrDownload.
func (d FileDelivery) Deliver(ctx context.Context, key JobKey, imageURL string) (string, error) {
	body, err := d.Fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return "", NewError(ErrDownload, fmt.Sprintf("fetch %s", imageURL), err)
	}
	defer body.Close()

	path, err := d.Store.Save(ctx, d.Dir, key, body)
	if err != nil {
		return "", NewError(ErrDownload, fmt.Sprintf("save %s", FilePath(d.Dir, key)), err)
	}
	return path, nil
}
