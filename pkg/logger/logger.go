package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const permission = 0664

// Build assembles a zerolog logger for the client. With no destination set,
// Make returns a disabled logger so library consumers pay nothing by default.
type Build struct {
	writer io.Writer
	path   string
}

func New() *Build {
	return &Build{}
}

func (build *Build) FromPath(path string) *Build {
	build.path = path
	return build
}

func (build *Build) FromBuffer(w io.Writer) *Build {
	build.writer = w
	return build
}

func (build *Build) Make() (zerolog.Logger, error) {
	writer := build.writer
	if build.path != "" {
		file, err := os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return zerolog.Nop(), err
		}
		writer = zerolog.SyncWriter(file)
	}
	if writer == nil {
		return zerolog.Nop(), nil
	}
	return zerolog.New(writer).With().Timestamp().Logger(), nil
}
