// Package avatar drives a virtual-avatar renderer over its plugin API.
// The controller is a best-effort boundary: avatar failures are logged and
// swallowed so they can never abort a conversation exchange.
package avatar

import "context"

// Controller receives speaking-state changes and parameter updates derived
// from playback. Implementations must be safe for concurrent use.
type Controller interface {
	SpeakingStarted(ctx context.Context)
	SpeakingStopped(ctx context.Context)
	SetParameter(ctx context.Context, name string, value float64) error
}

// NopController ignores every command. It is the default when no avatar
// endpoint is configured.
type NopController struct{}

func (NopController) SpeakingStarted(context.Context) {}

func (NopController) SpeakingStopped(context.Context) {}

func (NopController) SetParameter(context.Context, string, float64) error { return nil }
