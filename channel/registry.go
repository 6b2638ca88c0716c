package channel

import (
	"errors"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/yult97/idea-claude-code-gui-sub001/config"
	"github.com/yult97/idea-claude-code-gui-sub001/logger"
	"github.com/yult97/idea-claude-code-gui-sub001/session"
)

// ErrChannelNotFound is returned for operations on an unknown channel id.
var ErrChannelNotFound = errors.New("channel: not found")

// Registry maps channel ids to live channels. It is safe for concurrent use.
type Registry struct {
	agent Agent
	cfg   *config.Config

	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewRegistry creates a registry backed by the given agent and config.
func NewRegistry(agent Agent, cfg *config.Config) *Registry {
	return &Registry{
		agent:    agent,
		cfg:      cfg,
		channels: make(map[string]*Channel),
	}
}

// Create makes a new channel with a fresh id and an empty session.
func (r *Registry) Create(cwd string, listeners session.Listeners) *Channel {
	opts := r.defaultOptions(cwd)
	ch := newChannel(uuid.NewString(), r.agent, session.New(listeners), opts)

	r.mu.Lock()
	r.channels[ch.ID] = ch
	r.mu.Unlock()

	logger.WithChannel(ch.ID).Info("channel created", "cwd", cwd)
	return ch
}

// GetOrCreate returns the channel for an externally supplied id, creating it
// if needed. Safe to call concurrently; only one channel is ever created per
// id.
func (r *Registry) GetOrCreate(id, cwd string, listeners session.Listeners) *Channel {
	r.mu.RLock()
	if ch, ok := r.channels[id]; ok {
		r.mu.RUnlock()
		return ch
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have created it while we waited for the lock.
	if ch, ok := r.channels[id]; ok {
		return ch
	}

	ch := newChannel(id, r.agent, session.New(listeners), r.defaultOptions(cwd))
	r.channels[id] = ch
	logger.WithChannel(id).Info("channel created", "cwd", cwd)
	return ch
}

// Get returns the channel for an id, or nil.
func (r *Registry) Get(id string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[id]
}

// Channels returns a snapshot of all live channels.
func (r *Registry) Channels() map[string]*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make(map[string]*Channel, len(r.channels))
	maps.Copy(snapshot, r.channels)
	return snapshot
}

// Remove interrupts and forgets a channel.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	ch, ok := r.channels[id]
	if ok {
		delete(r.channels, id)
	}
	r.mu.Unlock()

	if ok {
		ch.Interrupt()
		logger.WithChannel(id).Info("channel removed")
	}
}

// Restart tears down a channel's identity and creates a replacement bound to
// the same session, resuming the resolved session id. The transcript is
// preserved.
func (r *Registry) Restart(id string) (*Channel, error) {
	r.mu.Lock()
	old, ok := r.channels[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrChannelNotFound
	}
	delete(r.channels, id)
	r.mu.Unlock()

	old.Interrupt()

	opts := old.opts
	opts.ResumeSessionID = old.session.ID()

	replacement := newChannel(uuid.NewString(), r.agent, old.session, opts)

	r.mu.Lock()
	r.channels[replacement.ID] = replacement
	r.mu.Unlock()

	logger.WithChannel(replacement.ID).Info("channel restarted",
		"previous", id, "resume", opts.ResumeSessionID)
	return replacement, nil
}

// Shutdown interrupts all channels and clears the registry.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[string]*Channel)
	r.mu.Unlock()

	log := logger.WithComponent("registry")
	log.Info("shutting down channels", "count", len(channels))
	for _, ch := range channels {
		ch.Interrupt()
	}
}

func (r *Registry) defaultOptions(cwd string) Options {
	opts := Options{Cwd: cwd}
	if r.cfg != nil {
		opts.PermissionMode = r.cfg.GetDefaultPermissionMode()
		opts.Model = r.cfg.GetDefaultModel()
		opts.Provider = r.cfg.GetProvider()
		opts.SendTimeout = r.cfg.GetSendTimeout()
	}
	return opts
}
