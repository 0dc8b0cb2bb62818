package bot

import (
	"context"
	"io"
)

// StatusMessage is an outbound message that can be edited in place, used for
// progress updates ("downloading" -> "saved", "merging" -> "sent").
type StatusMessage interface {
	Edit(ctx context.Context, text string) error
}

// Replier sends messages back to the user who triggered the current event.
// Implementations belong to the messaging gateway; the orchestrator never
// talks to the transport directly.
type Replier interface {
	Reply(ctx context.Context, text string) error
	ReplyStatus(ctx context.Context, text string) (StatusMessage, error)
	ReplyVideo(ctx context.Context, path, caption string) error
}

// Upload describes one inbound video event. Size is the gateway's declared
// byte count, available before any byte is transferred; Open starts the
// actual download.
type Upload struct {
	UserID int64
	Size   int64
	Open   func(ctx context.Context) (io.ReadCloser, error)
}
