package commands

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

// zerologAdapter exposes a zerolog logger through the engine's Logger
// interface.
type zerologAdapter struct {
	log zerolog.Logger
}

// newLogger builds the console logger used in verbose mode.
func newLogger() cloudstack.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr}

	return &zerologAdapter{
		log: zerolog.New(writer).Level(zerolog.DebugLevel).With().Timestamp().Logger(),
	}
}

func (l *zerologAdapter) Debug(msg string, fields map[string]interface{}) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *zerologAdapter) Info(msg string, fields map[string]interface{}) {
	l.log.Info().Fields(fields).Msg(msg)
}

func (l *zerologAdapter) Warn(msg string, fields map[string]interface{}) {
	l.log.Warn().Fields(fields).Msg(msg)
}

func (l *zerologAdapter) Error(msg string, fields map[string]interface{}) {
	l.log.Error().Fields(fields).Msg(msg)
}
