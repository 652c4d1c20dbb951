package log

import (
	"time"

	"gopkg.in/Sirupsen/logrus.v0"
)

type Level uint8

const (
	PanicLevel Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

var disabled = false

// Disable turns off all logging, whatever the module or level. Used in tests.
func Disable() {
	disabled = true
}

// An EntryZ is a log entry in construction. Field methods accumulate typed
// key/values without allocating until End() actually emits the entry. A nil
// EntryZ (module/level disabled) is valid and all methods on it are no-ops.
type EntryZ struct {
	mod Module
	lvl Level
	msg string

	zfbuf [8]ZField
	zfidx int
}

func newEntryZ() *EntryZ {
	return &EntryZ{}
}

func (e *EntryZ) field(f ZField) *EntryZ {
	if e == nil || e.zfidx == len(e.zfbuf) {
		return e
	}
	e.zfbuf[e.zfidx] = f
	e.zfidx++
	return e
}

func (e *EntryZ) Bool(key string, v bool) *EntryZ {
	return e.field(ZField{Type: FieldTypeBool, Key: key, Boolean: v})
}

func (e *EntryZ) String(key, v string) *EntryZ {
	return e.field(ZField{Type: FieldTypeString, Key: key, String: v})
}

func (e *EntryZ) Int(key string, v int) *EntryZ {
	return e.field(ZField{Type: FieldTypeInt, Key: key, Integer: uint64(v)})
}

func (e *EntryZ) Uint64(key string, v uint64) *EntryZ {
	return e.field(ZField{Type: FieldTypeUint, Key: key, Integer: v})
}

func (e *EntryZ) Hex8(key string, v uint8) *EntryZ {
	return e.field(ZField{Type: FieldTypeHex8, Key: key, Integer: uint64(v)})
}

func (e *EntryZ) Hex16(key string, v uint16) *EntryZ {
	return e.field(ZField{Type: FieldTypeHex16, Key: key, Integer: uint64(v)})
}

func (e *EntryZ) Error(key string, err error) *EntryZ {
	return e.field(ZField{Type: FieldTypeError, Key: key, Error: err})
}

func (e *EntryZ) Duration(key string, d time.Duration) *EntryZ {
	return e.field(ZField{Type: FieldTypeDuration, Key: key, Duration: d})
}

// End emits the entry.
func (e *EntryZ) End() {
	if e == nil {
		return
	}

	fields := make(logrus.Fields, e.zfidx+1)
	fields["_mod"] = modNames[e.mod]
	for i := range e.zfbuf[:e.zfidx] {
		fields[e.zfbuf[i].Key] = e.zfbuf[i].Value()
	}

	entry := logrus.StandardLogger().WithFields(fields)
	switch e.lvl {
	case PanicLevel:
		entry.Panic(e.msg)
	case FatalLevel:
		entry.Fatal(e.msg)
	case ErrorLevel:
		entry.Error(e.msg)
	case WarnLevel:
		entry.Warn(e.msg)
	case InfoLevel:
		entry.Info(e.msg)
	case DebugLevel:
		entry.Debug(e.msg)
	}
}
