package log

import "log/slog"

func TaskID[T ~string](id T) slog.Attr {
	return slog.String("task_id", string(id))
}

func UserID[T ~string](id T) slog.Attr {
	return slog.String("user_id", string(id))
}

func Topic(topic string) slog.Attr {
	return slog.String("topic", topic)
}

func Remaining(ms int64) slog.Attr {
	return slog.Int64("remaining_ms", ms)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
