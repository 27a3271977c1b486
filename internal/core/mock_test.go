package core

import (
	"encoding/hex"
	"errors"
	"sync"
)

// MockContextFactory hands out a fixed mock context
type MockContextFactory struct {
	ctx *MockSmartCardContext
	err error
}

func (f *MockContextFactory) EstablishContext() (SmartCardContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ctx, nil
}

// MockSmartCardContext implements SmartCardContext for testing
type MockSmartCardContext struct {
	readers     []string
	cards       map[string]*MockSmartCard
	shouldError bool
	errorMsg    string
	released    int
}

// MockSmartCard implements SmartCard for testing
type MockSmartCard struct {
	mu           sync.Mutex
	atr          []byte
	responses    map[string][]byte // command hex -> response
	transmitted  []string
	shouldError  bool
	errorMsg     string
	disconnected bool
}

// NewMockContext creates a new mock context with predefined readers
func NewMockContext() *MockSmartCardContext {
	return &MockSmartCardContext{
		readers: []string{
			"Generic USB Smart Card Reader 00 00",
			"ACS ACR39U ICC Reader 01 00",
		},
		cards: make(map[string]*MockSmartCard),
	}
}

// WithReaders sets the readers for the mock context
func (m *MockSmartCardContext) WithReaders(readers []string) *MockSmartCardContext {
	m.readers = readers
	return m
}

// WithCard adds a mock card to a specific reader
func (m *MockSmartCardContext) WithCard(readerName string, card *MockSmartCard) *MockSmartCardContext {
	m.cards[readerName] = card
	return m
}

// WithError makes the context return errors
func (m *MockSmartCardContext) WithError(msg string) *MockSmartCardContext {
	m.shouldError = true
	m.errorMsg = msg
	return m
}

func (m *MockSmartCardContext) ListReaders() ([]string, error) {
	if m.shouldError {
		return nil, errors.New(m.errorMsg)
	}
	return m.readers, nil
}

func (m *MockSmartCardContext) Connect(reader string, shareMode uint32, protocol uint32) (SmartCard, error) {
	if m.shouldError {
		return nil, errors.New(m.errorMsg)
	}
	card, ok := m.cards[reader]
	if !ok {
		return nil, errors.New("no card present")
	}
	card.mu.Lock()
	card.disconnected = false
	card.mu.Unlock()
	return card, nil
}

func (m *MockSmartCardContext) Release() error {
	m.released++
	return nil
}

// NewMockEUICC creates a card that answers SELECT ISD-R like an eSIM chip
func NewMockEUICC() *MockSmartCard {
	card := &MockSmartCard{responses: make(map[string][]byte)}
	card.atr, _ = hex.DecodeString("3b9f96803fc7a08031e073fe211f65d00233150f810f9e")
	card.responses[hex.EncodeToString(selectISDR)] = []byte{0x61, 0x22}
	return card
}

// NewMockSIM creates a regular UICC without an ISD-R
func NewMockSIM() *MockSmartCard {
	card := &MockSmartCard{responses: make(map[string][]byte)}
	card.atr, _ = hex.DecodeString("3b9f95801fc78031e073fe211b63e208a4830f900088")
	card.responses[hex.EncodeToString(selectISDR)] = []byte{0x6A, 0x82}
	return card
}

// WithResponse sets the response for a command
func (m *MockSmartCard) WithResponse(cmd, rsp []byte) *MockSmartCard {
	m.responses[hex.EncodeToString(cmd)] = rsp
	return m
}

// WithError makes the card return errors
func (m *MockSmartCard) WithError(msg string) *MockSmartCard {
	m.shouldError = true
	m.errorMsg = msg
	return m
}

func (m *MockSmartCard) Transmit(cmd []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shouldError {
		return nil, errors.New(m.errorMsg)
	}
	if m.disconnected {
		return nil, errors.New("card disconnected")
	}

	cmdHex := hex.EncodeToString(cmd)
	m.transmitted = append(m.transmitted, cmdHex)
	if resp, ok := m.responses[cmdHex]; ok {
		return resp, nil
	}

	// Default: command not supported
	return []byte{0x6D, 0x00}, nil
}

func (m *MockSmartCard) Status() (SmartCardStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shouldError {
		return SmartCardStatus{}, errors.New(m.errorMsg)
	}

	return SmartCardStatus{
		Reader:         "Mock Reader",
		ActiveProtocol: 1,
		Atr:            m.atr,
	}, nil
}

func (m *MockSmartCard) Disconnect(disposition uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
	return nil
}

// Transmitted returns the hex of every command sent to the card
func (m *MockSmartCard) Transmitted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.transmitted...)
}
