package main

import (
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// newLogger builds the zap-backed logger. Pretty logs use zap's development
// encoder; everything else logs JSON.
func newLogger(level string, pretty bool) (ectologger.Logger, func(), error) {
	atom, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	zcfg := zap.NewProductionConfig()
	if pretty {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = atom

	zl, err := zcfg.Build()
	if err != nil {
		return nil, nil, errors.Wrap(err, "build zap logger")
	}

	return zapadapter.NewZapEctoLogger(zl, nil), func() { _ = zl.Sync() }, nil
}
