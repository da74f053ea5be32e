package events

import (
	"log/slog"

	"github.com/rendis/taskchain/pkg/schema"
)

// StubProvider hands out no endpoints. It stands in for a transport that is
// not available in the current build or environment.
type StubProvider struct {
	logger *slog.Logger
}

// NewStubProvider creates a stub that logs every request.
func NewStubProvider(logger *slog.Logger) *StubProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubProvider{logger: logger}
}

func (s *StubProvider) GetNotifier(tag string) (Notifier, error) {
	s.logger.Warn("ipc notifier requested from stub provider", slog.String("tag", tag))
	return nil, schema.NewErrorf(schema.ErrCodeUnavailable, "no ipc transport for notifier %q", tag)
}

func (s *StubProvider) GetListener(tag string) (Listener, error) {
	s.logger.Warn("ipc listener requested from stub provider", slog.String("tag", tag))
	return nil, schema.NewErrorf(schema.ErrCodeUnavailable, "no ipc transport for listener %q", tag)
}
