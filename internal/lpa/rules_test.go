package lpa

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func p(iccid string, enabled bool) Profile {
	return Profile{ICCID: iccid, Enabled: enabled, Name: "op-" + iccid, Class: ClassOperational}
}

func TestDownloadedProfile(t *testing.T) {
	a, b, c, d := p("1", true), p("2", false), p("3", false), p("4", false)

	tests := []struct {
		name   string
		before []Profile
		after  []Profile
		want   string
		count  int
	}{
		{"one new profile", []Profile{a, b}, []Profile{a, b, c}, "3", 1},
		{"unchanged", []Profile{a, b}, []Profile{a, b}, "", 0},
		{"from empty", nil, []Profile{c}, "3", 1},
		{"new profile first in list", []Profile{a, b}, []Profile{c, a, b}, "3", 1},
		{"two new profiles first wins", []Profile{a}, []Profile{a, c, d}, "3", 2},
		{"profile removed", []Profile{a, b}, []Profile{a}, "", 0},
		{"both empty", nil, nil, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := DownloadedProfile(tt.before, tt.after)
			require.Equal(t, tt.count, n)
			require.Equal(t, tt.want, got.ICCID)
		})
	}
}

func TestSafeguardCheck(t *testing.T) {
	withActive := []Profile{p("1", true), p("2", false)}
	noneActive := []Profile{p("1", false), p("2", false)}
	port := CardPort{SlotID: 0, PortID: 0}
	usb := CardPort{SlotID: 99, PortID: 0}

	tests := []struct {
		name     string
		sg       Safeguard
		port     CardPort
		target   string
		profiles []Profile
		blocked  bool
	}{
		{"active target unconditional", Safeguard{Enabled: true, ExemptSlot: 99}, port, "", withActive, true},
		{"target is active", Safeguard{Enabled: true, ExemptSlot: 99}, port, "1", withActive, true},
		{"target is inactive", Safeguard{Enabled: true, ExemptSlot: 99}, port, "2", withActive, false},
		{"no profile enabled", Safeguard{Enabled: true, ExemptSlot: 99}, port, "", noneActive, false},
		{"preference disabled", Safeguard{Enabled: false, ExemptSlot: 99}, port, "", withActive, false},
		{"exempt channel", Safeguard{Enabled: true, ExemptSlot: 99}, usb, "", withActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sg.Check(tt.port, tt.target, tt.profiles)
			if tt.blocked {
				require.ErrorIs(t, err, ErrSafeguardActiveProfile)
				require.Equal(t, "safeguard_active_profile", err.Error())
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSafeguardApplies(t *testing.T) {
	sg := Safeguard{Enabled: true, ExemptSlot: 99}
	require.True(t, sg.Applies(CardPort{SlotID: 1}))
	require.False(t, sg.Applies(CardPort{SlotID: 99}))
	require.False(t, Safeguard{ExemptSlot: 99}.Applies(CardPort{SlotID: 1}))
}

func TestFilterOperational(t *testing.T) {
	profiles := []Profile{
		{ICCID: "1", Class: ClassOperational},
		{ICCID: "2", Class: ClassTest},
		{ICCID: "3", Class: ClassProvisioning},
		{ICCID: "4", Class: ClassOperational},
	}
	got := FilterOperational(profiles)
	require.Len(t, got, 2)
	require.Equal(t, "1", got[0].ICCID)
	require.Equal(t, "4", got[1].ICCID)
}

func TestFindEnabled(t *testing.T) {
	got, ok := FindEnabled([]Profile{p("1", false), p("2", true)})
	require.True(t, ok)
	require.Equal(t, "2", got.ICCID)

	_, ok = FindEnabled(nil)
	require.False(t, ok)
}

type stubChannel struct {
	Channel
	profiles []Profile
	disabled []string
	enabled  []string
	err      error
}

func (s *stubChannel) Profiles(context.Context) ([]Profile, error) { return s.profiles, s.err }

func (s *stubChannel) DisableProfile(_ context.Context, iccid string, _ bool) (bool, error) {
	s.disabled = append(s.disabled, iccid)
	return true, nil
}

func (s *stubChannel) EnableProfile(_ context.Context, iccid string, _ bool) (bool, error) {
	s.enabled = append(s.enabled, iccid)
	return true, nil
}

func TestDisableActive(t *testing.T) {
	ch := &stubChannel{profiles: []Profile{p("1", false), p("2", true)}}
	iccid, err := DisableActive(context.Background(), ch, true)
	require.NoError(t, err)
	require.Equal(t, "2", iccid)
	require.Equal(t, []string{"2"}, ch.disabled)

	idle := &stubChannel{profiles: []Profile{p("1", false)}}
	iccid, err = DisableActive(context.Background(), idle, true)
	require.NoError(t, err)
	require.Empty(t, iccid)
	require.Empty(t, idle.disabled)

	broken := &stubChannel{err: errors.New("card gone")}
	_, err = DisableActive(context.Background(), broken, true)
	require.EqualError(t, err, "card gone")
}

func TestSwitch(t *testing.T) {
	ch := &stubChannel{}
	ok, err := Switch(context.Background(), ch, "5", true, true)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"5"}, ch.enabled)

	_, err = Switch(context.Background(), ch, "6", false, false)
	require.NoError(t, err)
	require.Equal(t, []string{"6"}, ch.disabled)
}
