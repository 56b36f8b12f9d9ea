package utils

import (
	"fmt"

	"go.uber.org/zap"
)

// NewSugaredLogger creates the process-wide sugared logger. Verbose selects
// the human-readable development config with debug level enabled; otherwise
// the JSON production config is used.
func NewSugaredLogger(verbose bool) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return l.Sugar(), nil
}
