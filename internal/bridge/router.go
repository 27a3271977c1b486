// Package bridge dispatches named LPA operations to their handlers under a
// process-wide exclusive section and renders every outcome as a table.
package bridge

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/SimplyPrint/lpa-bridge/internal/logging"
	"github.com/SimplyPrint/lpa-bridge/internal/lpa"
	"github.com/SimplyPrint/lpa-bridge/internal/table"
)

type handlerFunc func(ctx context.Context, args Args) (*table.Table, error)

// Options wires a Router to its collaborators.
type Options struct {
	Manager     lpa.ChannelManager
	Preferences *Preferences
	// Notifier delivers download progress to callbackUrl. Optional.
	Notifier *Notifier
	// Metrics is optional.
	Metrics *Metrics
	// ExemptSlot is the slot the active-profile safeguard never applies to.
	ExemptSlot int
}

// Router maps endpoint names to handlers.
type Router struct {
	manager    lpa.ChannelManager
	prefs      *Preferences
	notifier   *Notifier
	metrics    *Metrics
	serializer *Serializer
	exemptSlot int
	handlers   map[string]handlerFunc

	listenersMu sync.RWMutex
	listeners   []func(lpa.DownloadEvent)
}

// NewRouter builds a Router with the full endpoint catalogue.
func NewRouter(opts Options) *Router {
	r := &Router{
		manager:    opts.Manager,
		prefs:      opts.Preferences,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		serializer: NewSerializer(opts.Metrics),
		exemptSlot: opts.ExemptSlot,
	}
	r.handlers = map[string]handlerFunc{
		"ping":                 r.handlePing,
		"preferences":          r.handlePreferences,
		"setPreference":        r.handleSetPreference,
		"cards":                r.handleCards,
		"profiles":             r.handleProfiles,
		"activeProfile":        r.handleActiveProfile,
		"downloadProfile":      r.handleDownloadProfile,
		"deleteProfile":        r.handleDeleteProfile,
		"enableProfile":        r.handleEnableProfile,
		"disableProfile":       r.handleDisableProfile,
		"disableActiveProfile": r.handleDisableActiveProfile,
		"switchProfile":        r.handleSwitchProfile,
		"setProfileNickname":   r.handleSetNickname,
		"setNickname":          r.handleSetNickname,
	}
	return r
}

// Endpoints returns the sorted endpoint names.
func (r *Router) Endpoints() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OnProgress registers fn to receive every download progress event. fn may
// be called from any goroutine and must not block.
func (r *Router) OnProgress(fn func(lpa.DownloadEvent)) {
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, fn)
	r.listenersMu.Unlock()
}

func (r *Router) emitProgress(callbackURL string, ev lpa.DownloadEvent) {
	if r.notifier != nil && callbackURL != "" {
		r.notifier.Notify(callbackURL, ev)
	}
	r.listenersMu.RLock()
	listeners := r.listeners
	r.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// ListCards enumerates the reachable card/port pairs inside the exclusive
// section, so reader enumeration never overlaps a running operation.
func (r *Router) ListCards(ctx context.Context) ([]lpa.CardPort, error) {
	return Run(ctx, r.serializer, r.manager.ListCards)
}

// Dispatch runs req and returns its result projected onto columns. The
// error column is always kept. When the json argument is true the result
// is replaced by a single "rows" cell holding its JSON encoding. Dispatch
// never fails: every error becomes a one-row error table.
func (r *Router) Dispatch(ctx context.Context, req Request, columns []string) *table.Table {
	label := req.Endpoint

	var result *table.Table
	if req.Endpoint == "" {
		label = "none"
		result = table.Error(ErrNoEndpoint.Code)
	} else {
		if _, ok := r.handlers[req.Endpoint]; !ok {
			label = "unknown"
		}
		res, err := Run(ctx, r.serializer, func(ctx context.Context) (*table.Table, error) {
			start := time.Now()
			defer func() {
				r.metrics.RecordDuration(label, time.Since(start))
			}()
			h, ok := r.handlers[req.Endpoint]
			if !ok {
				return nil, ErrUnknownEndpoint
			}
			return h(ctx, req.Args)
		})
		switch {
		case err != nil:
			msg, backend := errorMessage(err)
			if backend {
				logging.CaptureError(err, "endpoint:"+req.Endpoint, map[string]any{
					"args": req.Args.Keys(),
				})
			}
			result = table.Error(msg)
		case res == nil:
			result = table.Empty()
		default:
			result = res
		}
	}

	outcome := "ok"
	if msg, failed := result.ErrorMessage(); failed {
		outcome = "error"
		logging.Debug(logging.CatBridge, "Request failed", map[string]any{
			"endpoint": req.Endpoint,
			"error":    msg,
		})
	}
	r.metrics.RecordRequest(label, outcome)

	result = table.Project(result, columns, []string{table.ColumnError})

	if asJSON, _ := req.Args.Bool("json"); asJSON {
		encoded, err := table.EncodeJSON(result)
		if err != nil {
			return table.Error(err.Error())
		}
		result = table.Single(table.ColumnRows, table.Text(encoded))
	}
	return result
}

// errorMessage returns the caller-facing text for err: the bare code for
// bridge and domain errors, the backend's own text otherwise. backend
// reports whether err came from the card backend rather than the bridge,
// a cancelled wait or a recovered panic.
func errorMessage(err error) (msg string, backend bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Code, false
	}
	for _, sentinel := range []error{lpa.ErrSafeguardActiveProfile, lpa.ErrNoChannel, lpa.ErrInvalidActivationCode} {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), false
		}
	}
	var pe *PanicError
	if errors.As(err, &pe) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err.Error(), false
	}
	return err.Error(), true
}
