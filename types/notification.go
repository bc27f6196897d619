package types

import "time"

// Level classifies a notification.
type Level uint8

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Stamp is a notification time in wire form: Unix seconds plus the
// nanosecond remainder.
type Stamp struct {
	Unix  int64 `cramberry:"1"`
	Nanos int32 `cramberry:"2"`
}

// StampOf captures t.
func StampOf(t time.Time) Stamp {
	return Stamp{Unix: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time returns the stamp in UTC.
func (s Stamp) Time() time.Time {
	return time.Unix(s.Unix, int64(s.Nanos)).UTC()
}

// Notification is a transient user-visible message emitted at an
// operation boundary.
type Notification struct {
	ID      string `cramberry:"1"`
	Level   Level  `cramberry:"2"`
	Message string `cramberry:"3"`
	At      Stamp  `cramberry:"4"`
}
