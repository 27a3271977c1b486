// Package lpatest provides in-memory lpa.Channel and lpa.ChannelManager
// implementations for tests.
package lpatest

import (
	"context"
	"errors"
	"sync"

	"github.com/SimplyPrint/lpa-bridge/internal/lpa"
)

// Call records one mutating invocation on a Channel.
type Call struct {
	Op    string
	ICCID string
	Arg   string
}

// Channel is a fake eUICC holding a mutable profile list.
type Channel struct {
	mu       sync.Mutex
	profiles []lpa.Profile
	calls    []Call
	err      error

	// Pending is installed by the next DownloadProfile call.
	Pending []lpa.Profile
	// States are reported through the progress callback during a download.
	States []lpa.DownloadState
	// Hook runs at the start of every mutating call, outside the channel's lock.
	Hook func(op string)
}

// NewChannel returns a fake channel holding profiles.
func NewChannel(profiles ...lpa.Profile) *Channel {
	return &Channel{profiles: append([]lpa.Profile(nil), profiles...)}
}

// WithError makes every call fail with msg.
func (c *Channel) WithError(msg string) *Channel {
	c.mu.Lock()
	c.err = errors.New(msg)
	c.mu.Unlock()
	return c
}

// WithDownload configures the profiles installed and states reported by the next download.
func (c *Channel) WithDownload(states []lpa.DownloadState, installed ...lpa.Profile) *Channel {
	c.States = states
	c.Pending = installed
	return c
}

// Calls returns a copy of the recorded mutating calls.
func (c *Channel) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Snapshot returns the current profile list.
func (c *Channel) Snapshot() []lpa.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]lpa.Profile(nil), c.profiles...)
}

func (c *Channel) begin(op, iccid, arg string) error {
	if c.Hook != nil {
		c.Hook(op)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Op: op, ICCID: iccid, Arg: arg})
	return c.err
}

func (c *Channel) Profiles(ctx context.Context) ([]lpa.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return append([]lpa.Profile(nil), c.profiles...), nil
}

func (c *Channel) DownloadProfile(ctx context.Context, req lpa.DownloadRequest, progress lpa.ProgressFunc) error {
	if err := c.begin("download", "", req.Address); err != nil {
		return err
	}
	for _, s := range c.States {
		if progress != nil {
			progress(s)
		}
	}
	c.mu.Lock()
	c.profiles = append(c.profiles, c.Pending...)
	c.Pending = nil
	c.mu.Unlock()
	return nil
}

func (c *Channel) setEnabled(iccid string, enabled bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	found := false
	for i := range c.profiles {
		if c.profiles[i].ICCID == iccid {
			c.profiles[i].Enabled = enabled
			found = true
		} else if enabled {
			c.profiles[i].Enabled = false
		}
	}
	return found
}

func (c *Channel) EnableProfile(ctx context.Context, iccid string, refresh bool) (bool, error) {
	if err := c.begin("enable", iccid, boolArg(refresh)); err != nil {
		return false, err
	}
	return c.setEnabled(iccid, true), nil
}

func (c *Channel) DisableProfile(ctx context.Context, iccid string, refresh bool) (bool, error) {
	if err := c.begin("disable", iccid, boolArg(refresh)); err != nil {
		return false, err
	}
	return c.setEnabled(iccid, false), nil
}

func (c *Channel) DeleteProfile(ctx context.Context, iccid string) (bool, error) {
	if err := c.begin("delete", iccid, ""); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.profiles {
		if p.ICCID == iccid {
			c.profiles = append(c.profiles[:i], c.profiles[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (c *Channel) SetNickname(ctx context.Context, iccid, nickname string) error {
	if err := c.begin("nickname", iccid, nickname); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.profiles {
		if c.profiles[i].ICCID == iccid {
			n := nickname
			c.profiles[i].Nickname = &n
		}
	}
	return nil
}

func (c *Channel) ProcessNotifications(ctx context.Context) error {
	return c.begin("notifications", "", "")
}

func boolArg(b bool) string {
	if b {
		return "refresh"
	}
	return ""
}

// Manager is a fake ChannelManager over a fixed set of channels.
type Manager struct {
	mu       sync.Mutex
	ports    []lpa.CardPort
	channels map[lpa.CardPort]*Channel
	err      error
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{channels: make(map[lpa.CardPort]*Channel)}
}

// WithChannel registers ch under port.
func (m *Manager) WithChannel(port lpa.CardPort, ch *Channel) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[port]; !ok {
		m.ports = append(m.ports, port)
	}
	m.channels[port] = ch
	return m
}

// WithError makes ListCards fail with msg.
func (m *Manager) WithError(msg string) *Manager {
	m.err = errors.New(msg)
	return m
}

func (m *Manager) ListCards(ctx context.Context) ([]lpa.CardPort, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]lpa.CardPort(nil), m.ports...), nil
}

func (m *Manager) ResolveChannel(ctx context.Context, port lpa.CardPort) (lpa.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[port]
	if !ok {
		return nil, lpa.ErrNoChannel
	}
	return ch, nil
}
