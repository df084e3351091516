package domain

import "context"

// AvatarStore keeps uploaded profile photos
type AvatarStore interface {
	// Put stores an image under key and returns its public URL
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Remove deletes an image by the URL Put returned. URLs the store did not issue are ignored.
	Remove(ctx context.Context, url string) error
}
