package lpa

import "context"

// FindEnabled returns the first enabled profile.
func FindEnabled(profiles []Profile) (Profile, bool) {
	for _, p := range profiles {
		if p.Enabled {
			return p, true
		}
	}
	return Profile{}, false
}

// FilterOperational keeps only operational profiles.
func FilterOperational(profiles []Profile) []Profile {
	out := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.Class == ClassOperational {
			out = append(out, p)
		}
	}
	return out
}

// NewProfiles returns the profiles in after whose iccid is absent from before,
// in the order they appear in after.
func NewProfiles(before, after []Profile) []Profile {
	known := make(map[string]struct{}, len(before))
	for _, p := range before {
		known[p.ICCID] = struct{}{}
	}
	var out []Profile
	for _, p := range after {
		if _, ok := known[p.ICCID]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// DownloadedProfile identifies the profile a download just installed by
// diffing the profile lists taken before and after it. n is the number of
// new profiles; when it exceeds one the first wins.
func DownloadedProfile(before, after []Profile) (p Profile, n int) {
	added := NewProfiles(before, after)
	if len(added) == 0 {
		return Profile{}, 0
	}
	return added[0], len(added)
}

// Safeguard refuses operations that would remove or disable the active profile.
type Safeguard struct {
	// Enabled mirrors the safeguardActiveProfile preference.
	Enabled bool
	// ExemptSlot is the slot of the passthrough channel the rule never applies to.
	ExemptSlot int
}

// Check fails with ErrSafeguardActiveProfile when target is the currently
// enabled profile on port. An empty target means "whichever profile is
// active". The check passes when no profile is enabled.
func (s Safeguard) Check(port CardPort, target string, profiles []Profile) error {
	if port.SlotID == s.ExemptSlot || !s.Enabled {
		return nil
	}
	active, ok := FindEnabled(profiles)
	if !ok {
		return nil
	}
	if target == "" || target == active.ICCID {
		return ErrSafeguardActiveProfile
	}
	return nil
}

// Applies reports whether Check could fail for port, i.e. whether the
// caller needs to fetch a profile list at all.
func (s Safeguard) Applies(port CardPort) bool {
	return s.Enabled && port.SlotID != s.ExemptSlot
}

// DisableActive disables whichever profile is enabled on ch and returns its
// iccid. It returns "" without touching the card when nothing is enabled.
func DisableActive(ctx context.Context, ch Channel, refresh bool) (string, error) {
	profiles, err := ch.Profiles(ctx)
	if err != nil {
		return "", err
	}
	active, ok := FindEnabled(profiles)
	if !ok {
		return "", nil
	}
	if _, err := ch.DisableProfile(ctx, active.ICCID, refresh); err != nil {
		return "", err
	}
	return active.ICCID, nil
}

// Switch enables or disables iccid on ch.
func Switch(ctx context.Context, ch Channel, iccid string, enable, refresh bool) (bool, error) {
	if enable {
		return ch.EnableProfile(ctx, iccid, refresh)
	}
	return ch.DisableProfile(ctx, iccid, refresh)
}
