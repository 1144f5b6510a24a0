// Package rllog is the process-wide structured logger shared by the Siglus
// pipeline, the m6 engine, and the audio pipeline.
package rllog

import (
	"fmt"
	"time"
)

// Level is the severity of a log entry.
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelWarning
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelError:
		return "ERROR"
	case LevelWarning:
		return "WARNING"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

// Component names the subsystem that produced an entry.
type Component string

const (
	ComponentSiglus Component = "Siglus"
	ComponentM6     Component = "M6"
	ComponentAudio  Component = "Audio"
	ComponentMixer  Component = "Mixer"
	ComponentSystem Component = "System"
)

// Entry is a single recorded log line.
type Entry struct {
	Timestamp time.Time
	Component Component
	Level     Level
	Message   string
	Data      map[string]interface{}
}

// Format renders the entry as a single line: time, component, level, message.
func (e *Entry) Format() string {
	timestamp := e.Timestamp.Format("15:04:05.000")
	return fmt.Sprintf("[%s] [%s] %s: %s", timestamp, e.Component, e.Level, e.Message)
}
