package core

import (
	"context"
	"errors"
	"testing"

	"github.com/SimplyPrint/lpa-bridge/internal/lpa"
	"github.com/SimplyPrint/lpa-bridge/internal/lpa/lpatest"
)

const (
	readerA = "Generic USB Smart Card Reader 00 00"
	readerB = "ACS ACR39U ICC Reader 01 00"
	readerC = "Identiv uTrust 3700 F 02 00"
)

type channelRecord struct {
	index int
	name  string
}

func newTestManager(ctx *MockSmartCardContext) (*Manager, *[]channelRecord) {
	var made []channelRecord
	m := NewManager(&MockContextFactory{ctx: ctx}, func(index int, name string) lpa.Channel {
		made = append(made, channelRecord{index, name})
		return lpatest.NewChannel()
	})
	return m, &made
}

func TestListReaders(t *testing.T) {
	mctx := NewMockContext().
		WithReaders([]string{readerA, readerB, readerC}).
		WithCard(readerA, NewMockSIM()).
		WithCard(readerB, NewMockEUICC())
	m, _ := newTestManager(mctx)

	readers, err := m.ListReaders(context.Background())
	if err != nil {
		t.Fatalf("ListReaders failed: %v", err)
	}
	if len(readers) != 3 {
		t.Fatalf("expected 3 readers, got %d", len(readers))
	}

	tests := []struct {
		name    string
		present bool
		euicc   bool
	}{
		{readerA, true, false},
		{readerB, true, true},
		{readerC, false, false},
	}
	for i, tt := range tests {
		r := readers[i]
		if r.Index != i || r.Name != tt.name {
			t.Errorf("reader %d: got %d %q", i, r.Index, r.Name)
		}
		if r.CardPresent != tt.present {
			t.Errorf("%s: CardPresent = %v, want %v", tt.name, r.CardPresent, tt.present)
		}
		if r.EUICC != tt.euicc {
			t.Errorf("%s: EUICC = %v, want %v", tt.name, r.EUICC, tt.euicc)
		}
	}
	if readers[1].ATR == "" {
		t.Error("expected ATR for present card")
	}
	if mctx.released != 1 {
		t.Errorf("context should be released once, got %d", mctx.released)
	}
}

func TestListCards(t *testing.T) {
	mctx := NewMockContext().
		WithReaders([]string{readerA, readerB, readerC}).
		WithCard(readerA, NewMockEUICC()).
		WithCard(readerC, NewMockEUICC())
	m, _ := newTestManager(mctx)

	cards, err := m.ListCards(context.Background())
	if err != nil {
		t.Fatalf("ListCards failed: %v", err)
	}
	want := []lpa.CardPort{{SlotID: 0, PortID: 0}, {SlotID: 2, PortID: 0}}
	if len(cards) != len(want) {
		t.Fatalf("expected %v, got %v", want, cards)
	}
	for i := range want {
		if cards[i] != want[i] {
			t.Errorf("card %d: got %v, want %v", i, cards[i], want[i])
		}
	}
}

func TestListCardsNoReaders(t *testing.T) {
	m, _ := newTestManager(NewMockContext().WithReaders(nil))
	cards, err := m.ListCards(context.Background())
	if err != nil {
		t.Fatalf("ListCards failed: %v", err)
	}
	if cards == nil || len(cards) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", cards)
	}
}

func TestListCardsContextError(t *testing.T) {
	m := NewManager(&MockContextFactory{err: errors.New("service not available")}, nil)
	if _, err := m.ListCards(context.Background()); err == nil {
		t.Fatal("expected error when PC/SC is unavailable")
	}

	m, _ = newTestManager(NewMockContext().WithError("reader list failed"))
	if _, err := m.ListCards(context.Background()); err == nil {
		t.Fatal("expected error when listing readers fails")
	}
}

func TestInspectReaderAcceptsStatusWords(t *testing.T) {
	tests := []struct {
		name  string
		rsp   []byte
		euicc bool
	}{
		{"9000", []byte{0x6F, 0x10, 0x90, 0x00}, true},
		{"61xx", []byte{0x61, 0x1C}, true},
		{"6A82 file not found", []byte{0x6A, 0x82}, false},
		{"too short", []byte{0x90}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := NewMockSIM().WithResponse(selectISDR, tt.rsp)
			mctx := NewMockContext().WithReaders([]string{readerA}).WithCard(readerA, card)
			m, _ := newTestManager(mctx)

			readers, err := m.ListReaders(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if readers[0].EUICC != tt.euicc {
				t.Errorf("EUICC = %v, want %v", readers[0].EUICC, tt.euicc)
			}
		})
	}
}

func TestInspectReaderTransmitError(t *testing.T) {
	card := NewMockEUICC().WithError("card removed")
	mctx := NewMockContext().WithReaders([]string{readerA}).WithCard(readerA, card)
	m, _ := newTestManager(mctx)

	readers, err := m.ListReaders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !readers[0].CardPresent || readers[0].EUICC {
		t.Errorf("unexpected reader state %+v", readers[0])
	}
}

func TestResolveChannel(t *testing.T) {
	card := NewMockEUICC()
	mctx := NewMockContext().
		WithReaders([]string{readerA, readerB}).
		WithCard(readerA, NewMockSIM()).
		WithCard(readerB, card)
	m, made := newTestManager(mctx)

	ch, err := m.ResolveChannel(context.Background(), lpa.CardPort{SlotID: 1, PortID: 0})
	if err != nil {
		t.Fatalf("ResolveChannel failed: %v", err)
	}
	if ch == nil {
		t.Fatal("expected channel")
	}
	if len(*made) != 1 || (*made)[0] != (channelRecord{1, readerB}) {
		t.Errorf("channel built with %+v", *made)
	}
	if len(card.Transmitted()) != 1 {
		t.Errorf("expected one SELECT APDU, got %v", card.Transmitted())
	}
}

func TestResolveChannelUnreachable(t *testing.T) {
	mctx := NewMockContext().
		WithReaders([]string{readerA, readerB}).
		WithCard(readerA, NewMockSIM()).
		WithCard(readerB, NewMockEUICC())
	m, made := newTestManager(mctx)

	ports := []lpa.CardPort{
		{SlotID: 0, PortID: 0},  // not an eUICC
		{SlotID: 1, PortID: 1},  // single-port readers
		{SlotID: 5, PortID: 0},  // out of range
		{SlotID: -1, PortID: 0}, // negative
		{SlotID: 99, PortID: 0},
	}
	for _, port := range ports {
		_, err := m.ResolveChannel(context.Background(), port)
		if !errors.Is(err, lpa.ErrNoChannel) {
			t.Errorf("ResolveChannel(%v) err = %v, want ErrNoChannel", port, err)
		}
	}
	if len(*made) != 0 {
		t.Errorf("no channel should be built, got %+v", *made)
	}
}
