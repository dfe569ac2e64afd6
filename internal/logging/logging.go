// Package logging wires zerolog behind the logr.Logger interface, the same
// indirection the stackup-bundler family uses so that library code never
// imports a concrete logging backend.
package logging

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

func init() {
	zerologr.SetMaxV(1)
}

// New returns a logr.Logger backed by zerolog, writing human-readable output
// to stderr. name is attached as the logger's base name (e.g. "mempool").
func New(name string) logr.Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return zerologr.New(&zl).WithName(name)
}

// NewNop returns a logger that discards everything, used as the default for
// components constructed without an explicit logger.
func NewNop() logr.Logger {
	return logr.Discard()
}
