package bridge

import (
	"context"
	"time"

	"github.com/SimplyPrint/lpa-bridge/internal/logging"
	"github.com/SimplyPrint/lpa-bridge/internal/lpa"
	"github.com/SimplyPrint/lpa-bridge/internal/table"
)

func profileTable(profiles []lpa.Profile) *table.Table {
	t := table.New("iccid", table.ColumnEnabled, "name", "nickname")
	for _, p := range profiles {
		t.AddRow(table.Text(p.ICCID), table.Bool(p.Enabled), table.Text(p.Name), table.NullableText(p.Nickname))
	}
	return t
}

// channel resolves the card/port named by the slotId and portId arguments.
func (r *Router) channel(ctx context.Context, args Args) (lpa.CardPort, lpa.Channel, error) {
	port, err := args.RequireSlotAndPort()
	if err != nil {
		return port, nil, err
	}
	ch, err := r.manager.ResolveChannel(ctx, port)
	if err != nil {
		return port, nil, err
	}
	return port, ch, nil
}

// profiles fetches the profile list, honouring filterProfileList.
func (r *Router) profiles(ctx context.Context, ch lpa.Channel) ([]lpa.Profile, error) {
	profiles, err := ch.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	filter, err := r.prefs.Get(PrefFilterProfileList)
	if err != nil {
		return nil, err
	}
	if filter {
		return lpa.FilterOperational(profiles), nil
	}
	return profiles, nil
}

// safeguard fails when target ("" for whichever profile is enabled) is the
// active profile on port and the safeguard preference is on.
func (r *Router) safeguard(ctx context.Context, port lpa.CardPort, ch lpa.Channel, target string) error {
	enabled, err := r.prefs.Get(PrefSafeguardActiveProfile)
	if err != nil {
		return err
	}
	sg := lpa.Safeguard{Enabled: enabled, ExemptSlot: r.exemptSlot}
	if !sg.Applies(port) {
		return nil
	}
	profiles, err := r.profiles(ctx, ch)
	if err != nil {
		return err
	}
	if err := sg.Check(port, target, profiles); err != nil {
		logging.Info(logging.CatBridge, "Safeguard refused operation on active profile", map[string]any{
			"port":   port.String(),
			"target": target,
		})
		return err
	}
	return nil
}

// processNotifications lets the card deliver pending notifications when the
// matching preference is on. Failures are logged only.
func (r *Router) processNotifications(ctx context.Context, ch lpa.Channel, pref string) {
	if !r.prefs.Enabled(pref) {
		return
	}
	if err := ch.ProcessNotifications(ctx); err != nil {
		logging.Warn(logging.CatLPA, "Notification processing failed", map[string]any{
			"preference": pref,
			"error":      err.Error(),
		})
	}
}

func (r *Router) handlePing(ctx context.Context, args Args) (*table.Table, error) {
	return table.Single("ping", table.Text("pong")), nil
}

func (r *Router) handlePreferences(ctx context.Context, args Args) (*table.Table, error) {
	values, err := r.prefs.List()
	if err != nil {
		return nil, err
	}
	t := table.New("name", table.ColumnEnabled)
	for _, v := range values {
		t.AddRow(table.Text(v.Name), table.Bool(v.Enabled))
	}
	return t, nil
}

func (r *Router) handleSetPreference(ctx context.Context, args Args) (*table.Table, error) {
	name, err := args.RequireString("name")
	if err != nil {
		return nil, err
	}
	enabled, err := args.RequireBool("enabled")
	if err != nil {
		return nil, err
	}
	if err := r.prefs.Set(name, enabled); err != nil {
		return nil, err
	}
	logging.Info(logging.CatBridge, "Preference updated", map[string]any{
		"name":    name,
		"enabled": enabled,
	})
	return table.Success(true), nil
}

func (r *Router) handleCards(ctx context.Context, args Args) (*table.Table, error) {
	ports, err := r.manager.ListCards(ctx)
	if err != nil {
		return nil, err
	}
	t := table.New("slotId", "portId")
	for _, p := range ports {
		t.AddRow(table.Int(int64(p.SlotID)), table.Int(int64(p.PortID)))
	}
	return t, nil
}

func (r *Router) handleProfiles(ctx context.Context, args Args) (*table.Table, error) {
	_, ch, err := r.channel(ctx, args)
	if err != nil {
		return nil, err
	}
	profiles, err := r.profiles(ctx, ch)
	if err != nil {
		return nil, err
	}
	return profileTable(profiles), nil
}

func (r *Router) handleActiveProfile(ctx context.Context, args Args) (*table.Table, error) {
	_, ch, err := r.channel(ctx, args)
	if err != nil {
		return nil, err
	}
	profiles, err := r.profiles(ctx, ch)
	if err != nil {
		return nil, err
	}
	active, ok := lpa.FindEnabled(profiles)
	if !ok {
		return table.Empty(), nil
	}
	return profileTable([]lpa.Profile{active}), nil
}

func (r *Router) handleDownloadProfile(ctx context.Context, args Args) (*table.Table, error) {
	req := lpa.DownloadRequest{
		MatchingID:       args.StringPtr("matchingId"),
		ConfirmationCode: args.StringPtr("confirmationCode"),
		IMEI:             args.StringPtr("imei"),
	}

	if code, ok := args.String("activationCode"); ok {
		ac, err := lpa.ParseActivationCode(code)
		if err != nil {
			return nil, err
		}
		req.Address = ac.Address
		req.MatchingID = ac.MatchingID
		if ac.ConfirmationCodeRequired && req.ConfirmationCode == nil {
			return nil, MissingArg("confirmationCode")
		}
	} else if address, ok := args.String("address"); ok {
		req.Address = address
	} else {
		return nil, ErrActivationCodeOrAddress
	}

	port, ch, err := r.channel(ctx, args)
	if err != nil {
		return nil, err
	}

	before, err := r.profiles(ctx, ch)
	if err != nil {
		return nil, err
	}

	callbackURL, _ := args.String("callbackUrl")
	address := req.Address
	progress := func(state lpa.DownloadState) {
		r.emitProgress(callbackURL, lpa.DownloadEvent{
			Timestamp:        time.Now().Unix(),
			State:            string(state),
			Progress:         state.Progress(),
			Address:          &address,
			MatchingID:       req.MatchingID,
			ConfirmationCode: req.ConfirmationCode,
			IMEI:             req.IMEI,
		})
	}

	logging.Info(logging.CatLPA, "Downloading profile", map[string]any{
		"port":    port.String(),
		"address": req.Address,
	})
	if err := ch.DownloadProfile(ctx, req, progress); err != nil {
		return nil, err
	}
	r.processNotifications(ctx, ch, PrefNotificationsDownload)

	after, err := r.profiles(ctx, ch)
	if err != nil {
		return nil, err
	}

	installed, n := lpa.DownloadedProfile(before, after)
	if n == 0 {
		logging.Warn(logging.CatLPA, "Download finished but no new profile appeared", map[string]any{
			"port": port.String(),
		})
		return table.Empty(), nil
	}
	if n > 1 {
		logging.Warn(logging.CatLPA, "More than one new profile after download, reporting the first", map[string]any{
			"port":  port.String(),
			"count": n,
		})
	}
	return profileTable([]lpa.Profile{installed}), nil
}

func (r *Router) handleDeleteProfile(ctx context.Context, args Args) (*table.Table, error) {
	iccid, err := args.RequireString("iccid")
	if err != nil {
		return nil, err
	}
	port, ch, err := r.channel(ctx, args)
	if err != nil {
		return nil, err
	}
	if err := r.safeguard(ctx, port, ch, iccid); err != nil {
		return nil, err
	}
	ok, err := ch.DeleteProfile(ctx, iccid)
	if err != nil {
		return nil, err
	}
	if ok {
		r.processNotifications(ctx, ch, PrefNotificationsDelete)
	}
	return table.Success(ok), nil
}

func (r *Router) handleEnableProfile(ctx context.Context, args Args) (*table.Table, error) {
	iccid, err := args.RequireString("iccid")
	if err != nil {
		return nil, err
	}
	refresh := args.BoolOr("refresh", true)
	_, ch, err := r.channel(ctx, args)
	if err != nil {
		return nil, err
	}
	ok, err := ch.EnableProfile(ctx, iccid, refresh)
	if err != nil {
		return nil, err
	}
	if ok {
		r.processNotifications(ctx, ch, PrefNotificationsSwitch)
	}
	return table.Success(ok), nil
}

func (r *Router) handleDisableProfile(ctx context.Context, args Args) (*table.Table, error) {
	iccid, err := args.RequireString("iccid")
	if err != nil {
		return nil, err
	}
	refresh := args.BoolOr("refresh", true)
	port, ch, err := r.channel(ctx, args)
	if err != nil {
		return nil, err
	}
	if err := r.safeguard(ctx, port, ch, iccid); err != nil {
		return nil, err
	}
	ok, err := ch.DisableProfile(ctx, iccid, refresh)
	if err != nil {
		return nil, err
	}
	if ok {
		r.processNotifications(ctx, ch, PrefNotificationsSwitch)
	}
	return table.Success(ok), nil
}

func (r *Router) handleDisableActiveProfile(ctx context.Context, args Args) (*table.Table, error) {
	refresh := args.BoolOr("refresh", true)
	port, ch, err := r.channel(ctx, args)
	if err != nil {
		return nil, err
	}
	if err := r.safeguard(ctx, port, ch, ""); err != nil {
		return nil, err
	}
	iccid, err := lpa.DisableActive(ctx, ch, refresh)
	if err != nil {
		return nil, err
	}
	if iccid != "" {
		r.processNotifications(ctx, ch, PrefNotificationsSwitch)
	}
	return table.Success(true), nil
}

func (r *Router) handleSwitchProfile(ctx context.Context, args Args) (*table.Table, error) {
	iccid, err := args.RequireString("iccid")
	if err != nil {
		return nil, err
	}
	enable := args.BoolOr("enable", true)
	refresh := args.BoolOr("refresh", true)
	port, ch, err := r.channel(ctx, args)
	if err != nil {
		return nil, err
	}
	if !enable {
		if err := r.safeguard(ctx, port, ch, iccid); err != nil {
			return nil, err
		}
	}
	ok, err := lpa.Switch(ctx, ch, iccid, enable, refresh)
	if err != nil {
		return nil, err
	}
	if ok {
		r.processNotifications(ctx, ch, PrefNotificationsSwitch)
	}
	return table.Success(ok), nil
}

func (r *Router) handleSetNickname(ctx context.Context, args Args) (*table.Table, error) {
	iccid, err := args.RequireString("iccid")
	if err != nil {
		return nil, err
	}
	nickname, err := args.RequireString("nickname")
	if err != nil {
		return nil, err
	}
	_, ch, err := r.channel(ctx, args)
	if err != nil {
		return nil, err
	}
	if err := ch.SetNickname(ctx, iccid, nickname); err != nil {
		return nil, err
	}
	return table.Success(true), nil
}
