package bridge

import (
	"github.com/SimplyPrint/lpa-bridge/internal/settings"
)

// Visible preference names.
const (
	PrefVerboseLogging           = "verboseLogging"
	PrefForceUseTelephonyManager = "forceUseTelephonyManager"
	PrefSafeguardActiveProfile   = "safeguardActiveProfile"
	PrefFilterProfileList        = "filterProfileList"
	PrefIgnoreTLSCertificate     = "ignoreTlsCertificate"
	PrefNotificationsDownload    = "notificationsDownload"
	PrefNotificationsDelete      = "notificationsDelete"
	PrefNotificationsSwitch      = "notificationsSwitch"
)

// SettingsStore is the persistent storage behind preferences.
type SettingsStore interface {
	Bool(key settings.Key) (bool, error)
	SetBool(key settings.Key, value bool) error
}

type preference struct {
	name string
	key  settings.Key
	// inverted preferences store the negation of the visible value
	inverted   bool
	privileged bool
}

var preferenceTable = []preference{
	{name: PrefVerboseLogging, key: settings.KeyVerboseLogging},
	{name: PrefForceUseTelephonyManager, key: settings.KeyForceUseTMAPI, privileged: true},
	{name: PrefSafeguardActiveProfile, key: settings.KeyDisableSafeguard, inverted: true},
	{name: PrefFilterProfileList, key: settings.KeyUnfilteredProfileList, inverted: true},
	{name: PrefIgnoreTLSCertificate, key: settings.KeyIgnoreTLSCertificate},
	{name: PrefNotificationsDownload, key: settings.KeyNotificationDownload},
	{name: PrefNotificationsDelete, key: settings.KeyNotificationDelete},
	{name: PrefNotificationsSwitch, key: settings.KeyNotificationSwitch},
}

// PreferenceValue is one visible preference and its logical value.
type PreferenceValue struct {
	Name    string
	Enabled bool
}

// Preferences maps visible preference names onto stored settings.
type Preferences struct {
	store      SettingsStore
	privileged bool
	onChange   func(name string, enabled bool)
}

// NewPreferences returns Preferences over store. Privileged preferences are
// only visible when privileged is set.
func NewPreferences(store SettingsStore, privileged bool) *Preferences {
	return &Preferences{store: store, privileged: privileged}
}

// OnChange registers fn to run after a preference is successfully written.
func (p *Preferences) OnChange(fn func(name string, enabled bool)) {
	p.onChange = fn
}

func (p *Preferences) lookup(name string) (preference, bool) {
	for _, pref := range preferenceTable {
		if pref.name == name && (!pref.privileged || p.privileged) {
			return pref, true
		}
	}
	return preference{}, false
}

// List returns every visible preference in a fixed order.
func (p *Preferences) List() ([]PreferenceValue, error) {
	out := make([]PreferenceValue, 0, len(preferenceTable))
	for _, pref := range preferenceTable {
		if pref.privileged && !p.privileged {
			continue
		}
		v, err := p.store.Bool(pref.key)
		if err != nil {
			return nil, err
		}
		out = append(out, PreferenceValue{Name: pref.name, Enabled: v != pref.inverted})
	}
	return out, nil
}

// Get returns the logical value of a preference.
func (p *Preferences) Get(name string) (bool, error) {
	pref, ok := p.lookup(name)
	if !ok {
		return false, ErrUnknownPreference
	}
	v, err := p.store.Bool(pref.key)
	if err != nil {
		return false, err
	}
	return v != pref.inverted, nil
}

// Enabled is Get with lookup and storage failures reported as false.
func (p *Preferences) Enabled(name string) bool {
	v, err := p.Get(name)
	return err == nil && v
}

// Set stores the logical value of a preference.
func (p *Preferences) Set(name string, enabled bool) error {
	pref, ok := p.lookup(name)
	if !ok {
		return ErrUnknownPreference
	}
	if err := p.store.SetBool(pref.key, enabled != pref.inverted); err != nil {
		return err
	}
	if p.onChange != nil {
		p.onChange(name, enabled)
	}
	return nil
}
