// Package lpa defines the eSIM profile model, the collaborator interfaces the
// bridge consumes to reach a card, and the business rules layered on top.
package lpa

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Their messages are the codes reported to callers.
var (
	ErrSafeguardActiveProfile = errors.New("safeguard_active_profile")
	ErrNoChannel              = errors.New("no_euicc_channel")
	ErrInvalidActivationCode  = errors.New("invalid_activation_code")
)

// ProfileClass is the class reported by the eUICC for a profile.
type ProfileClass string

const (
	ClassOperational  ProfileClass = "operational"
	ClassTest         ProfileClass = "test"
	ClassProvisioning ProfileClass = "provisioning"
)

// Profile is a snapshot of one installed eSIM profile.
type Profile struct {
	ICCID    string
	Enabled  bool
	Name     string
	Nickname *string
	Class    ProfileClass
}

// CardPort identifies one addressable card/port pair.
type CardPort struct {
	SlotID int
	PortID int
}

func (p CardPort) String() string {
	return fmt.Sprintf("%d/%d", p.SlotID, p.PortID)
}

// DownloadRequest carries the SM-DP+ coordinates for a profile download.
type DownloadRequest struct {
	Address          string
	MatchingID       *string
	ConfirmationCode *string
	IMEI             *string
}

// DownloadState is a coarse download phase reported through progress callbacks.
type DownloadState string

const (
	StatePreparing      DownloadState = "Preparing"
	StateConnecting     DownloadState = "Connecting"
	StateAuthenticating DownloadState = "Authenticating"
	StateDownloading    DownloadState = "Downloading"
	StateFinalizing     DownloadState = "Finalizing"
)

// Progress returns the nominal completion percentage of the state.
func (s DownloadState) Progress() int {
	switch s {
	case StatePreparing:
		return 0
	case StateConnecting:
		return 20
	case StateAuthenticating:
		return 40
	case StateDownloading:
		return 60
	case StateFinalizing:
		return 80
	default:
		return 0
	}
}

// ProgressFunc receives download state updates. It may be invoked from a
// goroutine other than the one that started the download.
type ProgressFunc func(DownloadState)

// DownloadEvent is the payload delivered to callback URLs on each state update.
type DownloadEvent struct {
	Timestamp        int64   `json:"timestamp"`
	State            string  `json:"state"`
	Progress         int     `json:"progress"`
	Address          *string `json:"address"`
	MatchingID       *string `json:"matchingId"`
	ConfirmationCode *string `json:"confirmationCode"`
	IMEI             *string `json:"imei"`
}

// Channel is the profile-operations handle for a single card/port. Calls
// block until the card has answered.
type Channel interface {
	Profiles(ctx context.Context) ([]Profile, error)
	DownloadProfile(ctx context.Context, req DownloadRequest, progress ProgressFunc) error
	EnableProfile(ctx context.Context, iccid string, refresh bool) (bool, error)
	DisableProfile(ctx context.Context, iccid string, refresh bool) (bool, error)
	DeleteProfile(ctx context.Context, iccid string) (bool, error)
	SetNickname(ctx context.Context, iccid, nickname string) error
	ProcessNotifications(ctx context.Context) error
}

// ChannelManager enumerates cards and hands out channels for them.
// ResolveChannel returns ErrNoChannel when the pair is not reachable.
type ChannelManager interface {
	ListCards(ctx context.Context) ([]CardPort, error)
	ResolveChannel(ctx context.Context, port CardPort) (Channel, error)
}
