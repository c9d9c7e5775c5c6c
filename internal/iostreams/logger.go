package iostreams

import "github.com/rs/zerolog"

// Logger provides diagnostic logging for components that take it by
// injection. *zerolog.Logger satisfies this interface directly.
// Production passes &logger.Log; tests use loggertest.New() or
// loggertest.NewNop().
type Logger interface {
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
}
