//go:build !windows

package snapshot

import (
	"context"

	"github.com/paulschiretz/recall/pkg/hints"
)

type unsupportedProvider struct{}

func newPlatformProvider(CommandContext) Provider {
	return unsupportedProvider{}
}

func (unsupportedProvider) Acquire(context.Context, string) (Handle, error) {
	return nil, hints.Wrap(ErrUnsupported)
}
