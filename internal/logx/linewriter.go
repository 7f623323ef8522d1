package logx

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LineWriter turns stream output into per-line zerolog events at a given level.
// It is meant for exec.Cmd.Stderr.
type LineWriter struct {
	logger zerolog.Logger
	level  zerolog.Level

	mu  sync.Mutex
	buf bytes.Buffer
}

func NewLineWriter(fields map[string]string, level zerolog.Level) *LineWriter {
	l := log.Logger
	w := l.With()
	for k, v := range fields {
		w = w.Str(k, v)
	}
	return &LineWriter{logger: w.Logger(), level: level}
}

// Write buffers p and emits every complete line. ffmpeg terminates progress
// lines with '\r', so both '\r' and '\n' end a line.
func (lw *LineWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.buf.Write(p)
	for {
		data := lw.buf.Bytes()
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			break
		}
		line := string(data[:i])
		lw.buf.Next(i + 1)
		if line != "" {
			lw.emit(line)
		}
	}
	return len(p), nil
}

// Flush emits whatever partial line is still buffered.
func (lw *LineWriter) Flush() {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.buf.Len() > 0 {
		lw.emit(lw.buf.String())
		lw.buf.Reset()
	}
}

func (lw *LineWriter) emit(line string) {
	switch lw.level {
	case zerolog.DebugLevel:
		lw.logger.Debug().Msg(line)
	case zerolog.ErrorLevel:
		lw.logger.Error().Msg(line)
	default:
		lw.logger.Info().Msg(line)
	}
}
