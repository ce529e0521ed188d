package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
)

type LoggerConfig struct {
	Name          string      `json:"name"`
	LogLevel      hclog.Level `json:"logLevel"`
	JSONLogFormat bool        `json:"jsonLogFormat"`
	AppendFile    bool        `json:"appendFile"`
	LogFilePath   string      `json:"logFilePath"`
}

// NewLogger creates a hclog logger writing to stdout and, when a file path is
// configured, to a log file as well.
func NewLogger(config LoggerConfig) (hclog.Logger, error) {
	writers := []io.Writer{os.Stdout}

	if config.LogFilePath != "" {
		if err := CreateDirectoryIfNotExists(filepath.Dir(config.LogFilePath)); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		flags := os.O_CREATE | os.O_WRONLY
		if config.AppendFile {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}

		logFile, err := os.OpenFile(config.LogFilePath, flags, 0o640)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		writers = append(writers, logFile)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       config.Name,
		Level:      config.LogLevel,
		JSONFormat: config.JSONLogFormat,
		Output:     io.MultiWriter(writers...),
	}), nil
}
