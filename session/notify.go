package session

import (
	"go.uber.org/zap"

	"github.com/blockberries/quotify"
	"github.com/blockberries/quotify/types"
)

// Compile-time interface check.
var _ quotify.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a notifier logging through log.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(note types.Notification) {
	fields := []zap.Field{
		zap.String("id", note.ID),
		zap.Stringer("level", note.Level),
	}
	if note.Level == types.LevelError {
		n.log.Warn(note.Message, fields...)
		return
	}
	n.log.Info(note.Message, fields...)
}

func (s *Session) notify(level types.Level, msg string) {
	s.notifier.Notify(types.Notification{
		ID:      s.newID(),
		Level:   level,
		Message: msg,
		At:      types.StampOf(s.now()),
	})
}
