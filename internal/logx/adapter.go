package logx

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Adapter implements the key-value Logger interface of the pongo and loader
// packages on top of a zerolog.Logger.
type Adapter struct {
	logger *zerolog.Logger
}

// Adapt wraps logger. A nil logger discards everything.
func Adapt(logger *zerolog.Logger) *Adapter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Adapter{logger: logger}
}

func (a *Adapter) Debug(msg string, keysAndValues ...interface{}) {
	fields(a.logger.Debug(), keysAndValues).Msg(msg)
}

func (a *Adapter) Info(msg string, keysAndValues ...interface{}) {
	fields(a.logger.Info(), keysAndValues).Msg(msg)
}

func (a *Adapter) Error(msg string, keysAndValues ...interface{}) {
	fields(a.logger.Error(), keysAndValues).Msg(msg)
}

// fields adds alternating key-value pairs to e. A trailing key without a
// value is logged under "extra"; non-string keys are formatted.
func fields(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	if e == nil {
		return e
	}
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			e = e.Interface("extra", kv[i])
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if err, ok := kv[i+1].(error); ok {
			e = e.AnErr(key, err)
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}
