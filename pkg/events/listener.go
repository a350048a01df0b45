package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	// waitSlice bounds WaitForNotification so the loop regularly drains
	// pending LISTEN/UNLISTEN commands.
	waitSlice        = 100 * time.Millisecond
	maxReconnectWait = 30 * time.Second
)

type listenCmd struct {
	sql   string
	reply chan error
}

// Listener owns a dedicated PostgreSQL connection running LISTEN and feeds
// received notifications to the ConnectionManager. All connection access
// happens on the run loop goroutine; Listen/Unlisten hand their commands to
// the loop over a channel, which avoids concurrent pgx use.
type Listener struct {
	dsn     string
	manager *ConnectionManager

	cmds    chan listenCmd
	running atomic.Bool

	mu     sync.Mutex
	active map[string]bool // channels currently under LISTEN

	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a Listener. Start must be called before Listen.
func NewListener(dsn string, manager *ConnectionManager) *Listener {
	return &Listener{
		dsn:     dsn,
		manager: manager,
		cmds:    make(chan listenCmd, 16),
		active:  make(map[string]bool),
	}
}

// Start connects and launches the receive loop.
func (l *Listener) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connect for LISTEN: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running.Store(true)

	go func() {
		defer close(l.done)
		l.run(loopCtx, conn)
	}()

	slog.Info("Event listener started")
	return nil
}

// Stop shuts the receive loop down and waits for it to release the
// connection.
func (l *Listener) Stop() {
	if !l.running.Swap(false) {
		return
	}
	l.cancel()
	<-l.done
	slog.Info("Event listener stopped")
}

// Listen starts LISTEN on a channel. No-op when already listening.
func (l *Listener) Listen(ctx context.Context, channel string) error {
	l.mu.Lock()
	already := l.active[channel]
	l.mu.Unlock()
	if already {
		return nil
	}
	if err := l.exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	l.mu.Lock()
	l.active[channel] = true
	l.mu.Unlock()
	slog.Debug("Listening on channel", "channel", channel)
	return nil
}

// Unlisten stops LISTEN on a channel. No-op when not listening.
func (l *Listener) Unlisten(ctx context.Context, channel string) error {
	l.mu.Lock()
	active := l.active[channel]
	l.mu.Unlock()
	if !active {
		return nil
	}
	if err := l.exec(ctx, "UNLISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("UNLISTEN %s: %w", channel, err)
	}
	l.mu.Lock()
	delete(l.active, channel)
	l.mu.Unlock()
	return nil
}

func (l *Listener) exec(ctx context.Context, sql string) error {
	if !l.running.Load() {
		return fmt.Errorf("listener not running")
	}
	cmd := listenCmd{sql: sql, reply: make(chan error, 1)}
	select {
	case l.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the sole user of the pgx connection. It alternates between
// executing queued commands and waiting briefly for notifications, and
// re-establishes the connection (with its LISTEN set) after failures.
func (l *Listener) run(ctx context.Context, conn *pgx.Conn) {
	defer func() {
		if conn != nil {
			_ = conn.Close(context.Background())
		}
	}()

	for ctx.Err() == nil {
		if conn == nil {
			conn = l.reconnect(ctx)
			continue
		}

		l.drainCmds(ctx, conn)

		waitCtx, cancel := context.WithTimeout(ctx, waitSlice)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				continue // time slice elapsed, go service the command queue
			}
			slog.Error("Notification receive failed", "error", err)
			_ = conn.Close(context.Background())
			conn = nil
			continue
		}

		l.manager.Broadcast(notification.Channel, []byte(notification.Payload))
	}
}

func (l *Listener) drainCmds(ctx context.Context, conn *pgx.Conn) {
	for {
		select {
		case cmd := <-l.cmds:
			_, err := conn.Exec(ctx, cmd.sql)
			cmd.reply <- err
		default:
			return
		}
	}
}

// reconnect dials with exponential backoff and restores the LISTEN set.
func (l *Listener) reconnect(ctx context.Context) *pgx.Conn {
	wait := time.Second
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		conn, err := pgx.Connect(ctx, l.dsn)
		if err != nil {
			slog.Error("LISTEN reconnect failed", "error", err, "retry_in", wait)
			wait = min(wait*2, maxReconnectWait)
			continue
		}

		l.mu.Lock()
		channels := make([]string, 0, len(l.active))
		for ch := range l.active {
			channels = append(channels, ch)
		}
		l.mu.Unlock()

		for _, ch := range channels {
			if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
				slog.Error("Re-LISTEN failed", "channel", ch, "error", err)
			}
		}

		slog.Info("Event listener reconnected", "channels", len(channels))
		return conn
	}
}
