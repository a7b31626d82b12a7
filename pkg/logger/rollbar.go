package logger

import (
	"errors"

	"github.com/rollbar/rollbar-go"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/voxen-api/pkg/config"
)

// reporter is the subset of the rollbar client used by the core.
type reporter interface {
	ErrorWithExtras(level string, err error, extras map[string]interface{})
	Wait()
}

type rollbarClient struct {
	client *rollbar.Client
}

func (r rollbarClient) ErrorWithExtras(level string, err error, extras map[string]interface{}) {
	r.client.ErrorWithExtras(level, err, extras)
}

func (r rollbarClient) Wait() {
	r.client.Wait()
}

// RollbarCore is a zapcore.Core that reports error level entries to Rollbar.
type RollbarCore struct {
	reporter reporter
	fields   []zapcore.Field
}

// NewRollbarCore configures a Rollbar client from cfg.
func NewRollbarCore(cfg config.RollbarConfig) *RollbarCore {
	client := rollbar.NewAsync(cfg.Token, cfg.Environment, cfg.CodeVersion, "", "")
	return &RollbarCore{reporter: rollbarClient{client: client}}
}

func newRollbarCoreWith(r reporter) *RollbarCore {
	return &RollbarCore{reporter: r}
}

// Enabled only lets error and above through.
func (c *RollbarCore) Enabled(level zapcore.Level) bool {
	return level >= zapcore.ErrorLevel
}

// With returns a core carrying extra context fields.
func (c *RollbarCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &RollbarCore{reporter: c.reporter, fields: merged}
}

// Check adds the core when the entry is reportable.
func (c *RollbarCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

// Write sends the entry with its fields as extras.
func (c *RollbarCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	var cause error
	for _, f := range append(append([]zapcore.Field{}, c.fields...), fields...) {
		if f.Type == zapcore.ErrorType {
			if err, ok := f.Interface.(error); ok && cause == nil {
				cause = err
			}
		}
		f.AddTo(enc)
	}
	if cause == nil {
		cause = errors.New(entry.Message)
	}
	enc.Fields["message"] = entry.Message
	if entry.Caller.Defined {
		enc.Fields["caller"] = entry.Caller.TrimmedPath()
	}

	level := rollbar.ERR
	if entry.Level >= zapcore.DPanicLevel {
		level = rollbar.CRIT
	}
	c.reporter.ErrorWithExtras(level, cause, enc.Fields)
	return nil
}

// Sync blocks until queued reports are sent.
func (c *RollbarCore) Sync() error {
	c.reporter.Wait()
	return nil
}
