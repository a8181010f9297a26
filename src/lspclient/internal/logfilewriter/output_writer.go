package logfilewriter

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/uber/lsp-session/src/lspclient/internal/fs"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Writer receives the output of one server process and keeps it in a temporary log file.
type Writer interface {
	io.WriteCloser
	// Path is the log file the output is written to.
	Path() string
}

// New creates a writer for the stderr of a language server.
// Lines are written through a console logger so that each one carries a timestamp.
// The file lives under <dir>/<name> and is removed on Close unless keep is set.
func New(fsys fs.FS, dir, name string, keep bool) (Writer, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	logsDirPath := filepath.Join(dir, name)
	if err := fsys.MkdirAll(logsDirPath); err != nil {
		return nil, err
	}

	logFile, err := fsys.TempFile(logsDirPath, "stderr-*.log")
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(logFile),
		zap.InfoLevel,
	)
	return &loggerWriter{
		logger: zap.New(core).Sugar(),
		file:   logFile,
		fs:     fsys,
		keep:   keep,
	}, nil
}

type loggerWriter struct {
	logger *zap.SugaredLogger
	file   *os.File
	fs     fs.FS
	keep   bool
}

// Write implements the io.Writer interface by sending data to the given logger.
func (o *loggerWriter) Write(p []byte) (n int, err error) {
	// Incoming data may contain multiple lines, including blank ones.
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if len(line) > 0 {
			o.logger.Info(line)
		}
	}

	return len(p), nil
}

// Path returns the name of the log file.
func (o *loggerWriter) Path() string {
	return o.file.Name()
}

// Close flushes and closes the log file.
func (o *loggerWriter) Close() error {
	_ = o.logger.Sync()
	err := o.file.Close()
	if !o.keep {
		err = multierr.Append(err, o.fs.Remove(o.file.Name()))
	}
	return err
}
