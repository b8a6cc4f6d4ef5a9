package chat

import (
	"context"
	stderrors "errors"

	"github.com/hrygo/ragchat/server/internal/errors"
)

// upstreamError classifies a failed completion, embedding, or search
// call. Per-call deadlines in the AI clients surface as
// context.DeadlineExceeded and turn cancellation as context.Canceled;
// both get their own code so callers can tell them apart from a broken
// upstream.
func upstreamError(msg string, err error) *errors.TurnError {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Timeout(msg)
	case stderrors.Is(err, context.Canceled):
		return errors.ContextCanceled(err)
	default:
		return errors.Transport(msg, err)
	}
}
