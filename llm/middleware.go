package llm

import "context"

// Middleware intercepts completion requests around the default backend.
// TryHandle may short-circuit the backend entirely; OnResponse post-processes
// backend output. Middleware runs in registration order.
type Middleware interface {
	// TryHandle is offered the request before the backend call. Returning
	// handled=true short-circuits: its text becomes the response and no
	// further middleware or backend runs.
	TryHandle(ctx context.Context, req *Request) (text string, handled bool, err error)

	// OnResponse post-processes the backend's text output.
	OnResponse(text string) string
}

// Chain wraps a Completer with an ordered middleware pipeline.
func Chain(backend Completer, middleware ...Middleware) Completer {
	if len(middleware) == 0 {
		return backend
	}
	return &pipeline{backend: backend, middleware: middleware}
}

type pipeline struct {
	backend    Completer
	middleware []Middleware
}

func (p *pipeline) Complete(ctx context.Context, req *Request) (string, error) {
	for _, mw := range p.middleware {
		text, handled, err := mw.TryHandle(ctx, req)
		if err != nil {
			return "", err
		}
		if handled {
			return text, nil
		}
	}

	text, err := p.backend.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	for _, mw := range p.middleware {
		text = mw.OnResponse(text)
	}
	return text, nil
}
