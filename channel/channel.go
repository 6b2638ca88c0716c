// Package channel maps opaque channel identifiers to live subprocess-backed
// conversations and enforces the at-most-one in-flight send rule.
package channel

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/yult97/idea-claude-code-gui-sub001/logger"
	"github.com/yult97/idea-claude-code-gui-sub001/session"
	"github.com/yult97/idea-claude-code-gui-sub001/stream"
)

// ErrSendInFlight is returned when a send is attempted while another send on
// the same channel has not completed.
var ErrSendInFlight = errors.New("channel: send already in flight")

// Agent is the process-management collaborator backing a channel. The real
// implementation owns subprocess bootstrapping and executable discovery;
// tests inject a mock.
type Agent interface {
	// Launch starts (or resumes) the subprocess conversation for a channel
	// and returns the resolved session id, which may be empty until the
	// stream reports one.
	Launch(ctx context.Context, channelID, resumeSessionID, cwd string) (string, error)

	// Send submits a user turn and returns the raw event stream for it. The
	// returned channel is closed when the turn's stream ends.
	Send(ctx context.Context, channelID, text string, attachments []string, mode, model string) (<-chan string, error)

	// Interrupt stops the in-flight turn for a channel.
	Interrupt(channelID string) error
}

// Options configure a new channel.
type Options struct {
	Cwd             string
	PermissionMode  string
	Model           string
	Provider        string
	ResumeSessionID string
	// SendTimeout bounds a whole send including tool execution. Zero
	// disables the bound; agent turns routinely run for many minutes.
	SendTimeout time.Duration
}

// Channel is one subprocess-backed conversation context.
type Channel struct {
	ID string

	agent   Agent
	session *session.Session
	opts    Options
	log     *slog.Logger

	mu       sync.Mutex
	sending  bool
	launched bool
	cancel   context.CancelFunc
}

func newChannel(id string, agent Agent, sess *session.Session, opts Options) *Channel {
	return &Channel{
		ID:      id,
		agent:   agent,
		session: sess,
		opts:    opts,
		log:     logger.WithChannel(id),
	}
}

// Session returns the channel's session.
func (c *Channel) Session() *session.Session {
	return c.session
}

// Cwd returns the channel's working directory.
func (c *Channel) Cwd() string {
	return c.opts.Cwd
}

// Send submits a user turn. At most one send may be outstanding; a second
// send while one is in flight returns ErrSendInFlight. The event stream is
// consumed on a dedicated goroutine.
func (c *Channel) Send(text string, attachments []string) error {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	c.sending = true

	var ctx context.Context
	if c.opts.SendTimeout > 0 {
		ctx, c.cancel = context.WithTimeout(context.Background(), c.opts.SendTimeout)
	} else {
		ctx, c.cancel = context.WithCancel(context.Background())
	}
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		c.sending = false
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.mu.Unlock()
	}

	if err := c.ensureLaunched(ctx); err != nil {
		release()
		c.session.FailTurn("failed to launch agent: " + err.Error())
		return err
	}

	c.session.AddUserMessage(text)

	lines, err := c.agent.Send(ctx, c.ID, text, attachments, c.opts.PermissionMode, c.opts.Model)
	if err != nil {
		release()
		c.session.FailTurn("send failed: " + err.Error())
		return err
	}

	go c.consume(ctx, lines, release)
	return nil
}

// ensureLaunched launches the subprocess on the first send. Caller owns the
// sending slot.
func (c *Channel) ensureLaunched(ctx context.Context) error {
	c.mu.Lock()
	launched := c.launched
	c.mu.Unlock()
	if launched {
		return nil
	}

	sessionID, err := c.agent.Launch(ctx, c.ID, c.opts.ResumeSessionID, c.opts.Cwd)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.launched = true
	c.mu.Unlock()

	if sessionID != "" {
		c.session.Apply(stream.SessionIDFrame{SessionID: sessionID})
	}
	c.log.Info("channel launched", "resume", c.opts.ResumeSessionID != "")
	return nil
}

// consume reads the event stream to completion or cancellation. It is the
// channel's single decoder loop; session mutation happens only here.
func (c *Channel) consume(ctx context.Context, lines <-chan string, release func()) {
	defer release()

	streamLog := c.openStreamLog()
	if streamLog != nil {
		defer streamLog.Close()
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				c.log.Warn("send timed out", "timeout", c.opts.SendTimeout)
				c.session.FailTurn("send timed out")
				return
			}
			// Interrupted. The accumulated transcript stays; the turn just
			// ends here.
			c.log.Info("send interrupted")
			c.session.Apply(stream.MessageEndFrame{})
			return

		case line, ok := <-lines:
			if !ok {
				if c.session.IsBusy() {
					c.log.Warn("agent stream ended mid-turn")
					c.session.FailTurn("agent stream ended unexpectedly")
				}
				return
			}
			if streamLog != nil {
				streamLog.WriteString(line + "\n")
			}
			if f := stream.Decode(line); f != nil {
				c.session.Apply(f)
			} else {
				c.log.Debug("ignoring unrecognized line", "line", stream.TruncateForLog(line))
			}
		}
	}
}

// openStreamLog opens the per-channel raw stream log. Failure to open is
// logged and streaming proceeds without it.
func (c *Channel) openStreamLog() *os.File {
	path, err := logger.StreamLogPath(c.ID)
	if err != nil {
		c.log.Debug("stream log unavailable", "error", err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		c.log.Debug("failed to open stream log", "error", err)
		return nil
	}
	return f
}

// Interrupt stops the in-flight send, if any. Interrupting an idle channel
// is a no-op, not an error. The transcript accumulated so far is preserved.
func (c *Channel) Interrupt() error {
	c.mu.Lock()
	if !c.sending {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.mu.Unlock()

	if err := c.agent.Interrupt(c.ID); err != nil {
		c.log.Warn("agent interrupt failed", "error", err)
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// IsSending reports whether a send is in flight.
func (c *Channel) IsSending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}
