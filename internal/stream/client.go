package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/helio/sungo/internal/metrics"
)

const writeTimeout = 30 * time.Second

// eventWriter writes named SSE events to one playback connection. Frame
// events carry their index as the event id, so a reconnecting EventSource
// reports the last frame it saw in Last-Event-ID.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger

	events int64
	bytes  int64
}

// event writes v as the data of an SSE event. id is omitted when negative.
func (e *eventWriter) event(name string, id int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	buf := make([]byte, 0, len(data)+48)
	buf = append(buf, "event: "...)
	buf = append(buf, name...)
	buf = append(buf, '\n')
	if id >= 0 {
		buf = append(buf, "id: "...)
		buf = strconv.AppendInt(buf, int64(id), 10)
		buf = append(buf, '\n')
	}
	buf = append(buf, "data: "...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)

	if err := e.write(buf); err != nil {
		return fmt.Errorf("write %s event: %w", name, err)
	}
	e.events++
	metrics.IncStreamMessages()
	return nil
}

// comment writes an SSE comment line, which clients ignore.
func (e *eventWriter) comment() error {
	if err := e.write([]byte(":\n\n")); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	return nil
}

func (e *eventWriter) write(b []byte) error {
	if err := e.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		e.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := e.w.Write(b)
	e.bytes += int64(n)
	metrics.AddStreamBytes(int64(n))
	if err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}
