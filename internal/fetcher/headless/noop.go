package headless

import "context"

// Noop implements Renderer for builds without a browser; every call fails
// with ErrRendererDisabled.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render returns ErrRendererDisabled.
func (Noop) Render(_ context.Context, _ Request) (Response, error) {
	return Response{}, ErrRendererDisabled
}
