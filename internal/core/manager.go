package core

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/SimplyPrint/lpa-bridge/internal/logging"
	"github.com/SimplyPrint/lpa-bridge/internal/lpa"
)

// selectISDR selects the eUICC's ISD-R application (SGP.22 AID
// A0000005591010FFFFFFFF8900000100).
var selectISDR = []byte{
	0x00, 0xA4, 0x04, 0x00, 0x10,
	0xA0, 0x00, 0x00, 0x05, 0x59, 0x10, 0x10, 0xFF,
	0xFF, 0xFF, 0xFF, 0x89, 0x00, 0x00, 0x01, 0x00,
	0x00,
}

// ChannelFactory builds the profile-operations handle for a reader.
type ChannelFactory func(readerIndex int, readerName string) lpa.Channel

// Manager enumerates PC/SC readers holding an eUICC. Each such reader is
// exposed as slot <reader index>, port 0.
type Manager struct {
	factory    ContextFactory
	newChannel ChannelFactory
}

var _ lpa.ChannelManager = (*Manager)(nil)

// NewManager returns a Manager. A nil factory uses the system PC/SC service.
func NewManager(factory ContextFactory, newChannel ChannelFactory) *Manager {
	if factory == nil {
		factory = DefaultContextFactory{}
	}
	return &Manager{factory: factory, newChannel: newChannel}
}

// ListReaders returns every reader with card presence and eUICC detection.
func (m *Manager) ListReaders(ctx context.Context) ([]Reader, error) {
	sc, err := m.factory.EstablishContext()
	if err != nil {
		return nil, err
	}
	defer sc.Release()

	names, err := sc.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("failed to list readers: %w", err)
	}

	readers := make([]Reader, 0, len(names))
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		readers = append(readers, inspectReader(sc, i, name))
	}
	return readers, nil
}

// inspectReader connects to a reader and checks whether the card answers SELECT ISD-R.
func inspectReader(sc SmartCardContext, index int, name string) Reader {
	r := Reader{Index: index, Name: name}

	card, err := sc.Connect(name, shareShared, protocolAny)
	if err != nil {
		logging.Debug(logging.CatCard, "No card in reader", map[string]any{
			"reader": name,
			"error":  err.Error(),
		})
		return r
	}
	defer card.Disconnect(leaveCard)
	r.CardPresent = true

	if status, err := card.Status(); err == nil {
		r.ATR = hex.EncodeToString(status.Atr)
	}

	rsp, err := card.Transmit(selectISDR)
	if err != nil {
		logging.Debug(logging.CatCard, "SELECT ISD-R failed", map[string]any{
			"reader": name,
			"error":  err.Error(),
		})
		return r
	}
	if len(rsp) < 2 {
		return r
	}

	sw1, sw2 := rsp[len(rsp)-2], rsp[len(rsp)-1]
	// 61xx: response bytes still available (T=0)
	r.EUICC = (sw1 == 0x90 && sw2 == 0x00) || sw1 == 0x61
	if !r.EUICC {
		logging.Debug(logging.CatCard, "Card is not an eUICC", map[string]any{
			"reader": name,
			"sw":     fmt.Sprintf("%02X%02X", sw1, sw2),
		})
	}
	return r
}

// ListCards returns a CardPort for each reader holding an eUICC.
func (m *Manager) ListCards(ctx context.Context) ([]lpa.CardPort, error) {
	readers, err := m.ListReaders(ctx)
	if err != nil {
		return nil, err
	}
	ports := []lpa.CardPort{}
	for _, r := range readers {
		if r.EUICC {
			ports = append(ports, lpa.CardPort{SlotID: r.Index, PortID: 0})
		}
	}
	return ports, nil
}

// ResolveChannel returns a channel for port, or lpa.ErrNoChannel when the
// slot has no reachable eUICC.
func (m *Manager) ResolveChannel(ctx context.Context, port lpa.CardPort) (lpa.Channel, error) {
	if port.PortID != 0 || port.SlotID < 0 {
		return nil, lpa.ErrNoChannel
	}

	readers, err := m.ListReaders(ctx)
	if err != nil {
		return nil, err
	}
	if port.SlotID >= len(readers) || !readers[port.SlotID].EUICC {
		logging.Debug(logging.CatCard, "No eUICC at requested slot", map[string]any{
			"slot":    port.SlotID,
			"readers": len(readers),
		})
		return nil, lpa.ErrNoChannel
	}

	r := readers[port.SlotID]
	return m.newChannel(r.Index, r.Name), nil
}
