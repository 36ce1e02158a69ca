// Package notify carries per-call progress and error notes from the
// pipelines back to whoever invoked the tool. Notes never alter a tool's
// return value.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/server"
)

// Level is the severity of a note. Values match the MCP logging levels.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// LoggerName identifies this server in MCP log notifications.
const LoggerName = "searchmcp"

// Sink receives leveled text notes.
type Sink interface {
	Info(msg string)
	Warning(msg string)
	Error(msg string)
}

// Discard drops every note.
var Discard Sink = discard{}

type discard struct{}

func (discard) Info(string)    {}
func (discard) Warning(string) {}
func (discard) Error(string)   {}

// LogSink writes notes to a slog.Logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink backed by logger, or slog.Default() when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Info(msg string)    { s.logger.Info(msg) }
func (s *LogSink) Warning(msg string) { s.logger.Warn(msg) }
func (s *LogSink) Error(msg string)   { s.logger.Error(msg) }

// MCPSink forwards notes to the calling client as notifications/message and
// mirrors them to a logger.
type MCPSink struct {
	ctx    context.Context
	srv    *server.MCPServer
	mirror *LogSink
}

// NewMCPSink binds a sink to the client session in ctx. Outside an MCP
// request it degrades to a LogSink.
func NewMCPSink(ctx context.Context, logger *slog.Logger) Sink {
	mirror := NewLogSink(logger)
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return mirror
	}
	return &MCPSink{ctx: ctx, srv: srv, mirror: mirror}
}

func (s *MCPSink) Info(msg string) {
	s.mirror.Info(msg)
	s.send(LevelInfo, msg)
}

func (s *MCPSink) Warning(msg string) {
	s.mirror.Warning(msg)
	s.send(LevelWarning, msg)
}

func (s *MCPSink) Error(msg string) {
	s.mirror.Error(msg)
	s.send(LevelError, msg)
}

func (s *MCPSink) send(level Level, msg string) {
	err := s.srv.SendNotificationToClient(s.ctx, "notifications/message", map[string]any{
		"level":  string(level),
		"logger": LoggerName,
		"data":   msg,
	})
	if err != nil {
		s.mirror.logger.Debug("dropping client notification", "level", level, "err", err)
	}
}

// Entry is one recorded note.
type Entry struct {
	Level   Level
	Message string
}

// Recorder keeps notes in memory. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Info(msg string)    { r.add(LevelInfo, msg) }
func (r *Recorder) Warning(msg string) { r.add(LevelWarning, msg) }
func (r *Recorder) Error(msg string)   { r.add(LevelError, msg) }

func (r *Recorder) add(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg})
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Count returns how many notes were recorded at level.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}
