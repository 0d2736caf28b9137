// Package stream bridges a live execution's output to a websocket client.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loykin/servcur/internal/broadcast"
	"github.com/loykin/servcur/internal/domain"
	"github.com/loykin/servcur/internal/executor"
)

// CloseReason is sent with the normal close frame once the execution ends.
const CloseReason = "io closed"

const (
	writeWait = 10 * time.Second
	closeWait = time.Second
)

// Selector picks one of the two output streams of an execution.
type Selector string

const (
	Stdout Selector = "stdout"
	Stderr Selector = "stderr"
)

func ParseSelector(s string) (Selector, error) {
	switch Selector(s) {
	case Stdout, Stderr:
		return Selector(s), nil
	}
	return "", fmt.Errorf("%w: stream must be stdout or stderr, got %q", domain.ErrInvalid, s)
}

// Source resolves live executions.
type Source interface {
	Lookup(id domain.ExecutionID) (executor.Output, bool)
}

type Bridge struct {
	src      Source
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func New(src Source, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		src: src,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "stream"),
	}
}

// Serve upgrades the request and feeds it the selected stream of id until
// the execution ends or the client goes away. Errors are only returned
// before the upgrade, so the caller can still answer with a status code.
func (b *Bridge) Serve(w http.ResponseWriter, r *http.Request, id domain.ExecutionID, sel Selector) error {
	out, ok := b.src.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: execution %s is not running", domain.ErrNotFound, id)
	}
	topic := out.Stdout
	if sel == Stderr {
		topic = out.Stderr
	}
	// Subscribe first so nothing published during the handshake is lost.
	sub := topic.Subscribe()

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("Websocket upgrade failed", "id", id, "error", err)
		return nil
	}
	defer func() { _ = conn.Close() }()
	b.logger.Debug("Stream attached", "id", id, "stream", sel, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		// Reading is only used to notice the client leaving.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = forward(ctx, deadlineWriter{conn}, sub)
	switch {
	case errors.Is(err, broadcast.ErrClosed):
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, CloseReason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		select {
		case <-readDone:
		case <-time.After(closeWait):
		}
	case errors.Is(err, context.Canceled):
		b.logger.Debug("Stream client left", "id", id, "stream", sel)
	default:
		b.logger.Debug("Stream write failed", "id", id, "stream", sel, "error", err)
	}
	_ = conn.Close()
	<-readDone
	return nil
}

type messageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

type deadlineWriter struct{ conn *websocket.Conn }

func (d deadlineWriter) WriteMessage(messageType int, data []byte) error {
	_ = d.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return d.conn.WriteMessage(messageType, data)
}

// LagNotice is the text frame sent in place of lines a slow client missed.
func LagNotice(missed uint64) string {
	return fmt.Sprintf("[servcur] missed %d lines", missed)
}

// forward copies messages from sub to w until the topic is closed
// (broadcast.ErrClosed), ctx ends, or a write fails.
func forward(ctx context.Context, w messageWriter, sub *broadcast.Subscription) error {
	for {
		line, err := sub.Recv(ctx)
		var lag *broadcast.LaggedError
		switch {
		case errors.As(err, &lag):
			line = LagNotice(lag.Missed)
		case err != nil:
			return err
		}
		if err := w.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return err
		}
	}
}
