package stream

import (
	"bufio"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// LogErrorReason is sent with a going-away close frame when reading the
// source fails.
const LogErrorReason = "log error"

const maxLineSize = 1 << 20

// ServeLines upgrades the request and sends every line read from src as a
// text frame, then a normal close frame once src is exhausted. src is
// closed when either side ends, which is how a followed source is stopped
// after the client leaves.
func (b *Bridge) ServeLines(w http.ResponseWriter, r *http.Request, src io.ReadCloser) {
	closeSrc := sync.OnceFunc(func() { _ = src.Close() })
	defer closeSrc()

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("Websocket upgrade failed", "path", r.URL.Path, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	readDone := make(chan struct{})
	go func() {
		// readDone closes before src, so a copy ended by the client leaving
		// always sees it.
		defer closeSrc()
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = copyLines(deadlineWriter{conn}, src)
	select {
	case <-readDone:
		b.logger.Debug("Log client left", "path", r.URL.Path)
		return
	default:
	}

	code, reason := websocket.CloseNormalClosure, CloseReason
	if err != nil {
		b.logger.Warn("Log stream failed", "path", r.URL.Path, "error", err)
		code, reason = websocket.CloseGoingAway, LogErrorReason
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	select {
	case <-readDone:
	case <-time.After(closeWait):
	}
	_ = conn.Close()
	<-readDone
}

// copyLines writes each line of src as one text message, without the line
// terminator. It returns nil at EOF.
func copyLines(w messageWriter, src io.Reader) error {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		if err := w.WriteMessage(websocket.TextMessage, sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}
