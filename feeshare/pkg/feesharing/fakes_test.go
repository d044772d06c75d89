package feesharing

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/moltpump/feeshare/feeshare/pkg/chain"
	"github.com/moltpump/feeshare/feeshare/pkg/pump"
	"github.com/moltpump/feeshare/feeshare/pkg/store"
	"github.com/moltpump/feeshare/utils/pkg/pacer"
	feesharetesting "github.com/moltpump/feeshare/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

const testRent = 890_880

// fakeLedger is an in-memory chain with just enough behavior for the
// service: accounts, token balances and the minimum-fee view.
type fakeLedger struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*chain.Account
	tokens   map[solana.PublicKey]uint64
	readErr  map[solana.PublicKey]error
	minimum  uint64
	simErr   error
	simCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		accounts: map[solana.PublicKey]*chain.Account{},
		tokens:   map[solana.PublicKey]uint64{},
		readErr:  map[solana.PublicKey]error{},
		minimum:  DefaultMinDistributableLamports,
	}
}

func (l *fakeLedger) AccountInfo(_ context.Context, pk solana.PublicKey) (*chain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readErr[pk]; err != nil {
		return nil, err
	}
	acct, ok := l.accounts[pk]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chain.ErrAccountNotFound, pk)
	}
	return acct, nil
}

func (l *fakeLedger) TokenBalance(_ context.Context, pk solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.tokens[pk]
	if !ok {
		return 0, fmt.Errorf("%w: %s", chain.ErrAccountNotFound, pk)
	}
	return balance, nil
}

func (l *fakeLedger) RentExemptMinimum(context.Context, uint64) (uint64, error) {
	return testRent, nil
}

func (l *fakeLedger) Simulate(_ context.Context, _ solana.PublicKey, _ ...solana.Instruction) (*chain.Simulation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.simCalls++
	if l.simErr != nil {
		return nil, l.simErr
	}
	data := make([]byte, 17)
	binary.LittleEndian.PutUint64(data, l.minimum)
	return &chain.Simulation{ReturnData: data}, nil
}

func (l *fakeLedger) putAccount(t *testing.T, pk solana.PublicKey, lamports uint64, v any) {
	t.Helper()
	var data []byte
	if v != nil {
		var err error
		data, err = pump.EncodeAccount(v)
		require.NoError(t, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[pk] = &chain.Account{Address: pk, Lamports: lamports, Data: data}
}

// launch records a bonding curve for mint whose creator is creator.
func (l *fakeLedger) launch(t *testing.T, mint, creator solana.PublicKey) {
	t.Helper()
	l.putAccount(t, pump.BondingCurvePDA(mint), 1, &pump.BondingCurve{
		VirtualTokenReserves: 1_073_000_000_000_000,
		VirtualSolReserves:   30_000_000_000,
		RealTokenReserves:    793_100_000_000_000,
		Creator:              creator,
	})
}

// configure launches mint with a migrated sharing config holding holders.
func (l *fakeLedger) configure(t *testing.T, mint solana.PublicKey, holders []pump.Shareholder) {
	t.Helper()
	config := pump.SharingConfigPDA(mint)
	l.launch(t, mint, config)
	l.putAccount(t, config, 1, &pump.SharingConfig{
		Status:       pump.SharingConfigActive,
		Mint:         mint,
		Shareholders: holders,
	})
}

// fund sets the pump creator vault of mint's sharing config to hold balance
// distributable lamports.
func (l *fakeLedger) fund(t *testing.T, mint solana.PublicKey, balance uint64) {
	t.Helper()
	l.putAccount(t, pump.CreatorVaultPDA(pump.SharingConfigPDA(mint)), balance+testRent, nil)
}

type sentTx struct {
	description  string
	instructions []solana.Instruction
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []sentTx
	sendFunc func(description string, n int) (solana.Signature, error)
}

func (s *fakeSender) SendWithRetry(_ context.Context, instructions []solana.Instruction, _ []solana.PrivateKey, description string) (solana.Signature, error) {
	s.mu.Lock()
	s.sent = append(s.sent, sentTx{description: description, instructions: instructions})
	n := len(s.sent)
	s.mu.Unlock()
	if s.sendFunc != nil {
		return s.sendFunc(description, n)
	}
	return solana.Signature{byte(n)}, nil
}

func (s *fakeSender) calls() []sentTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentTx(nil), s.sent...)
}

type fakeAuditor struct {
	mu     sync.Mutex
	events []store.Event
	err    error
}

func (a *fakeAuditor) AppendEvent(_ context.Context, ev store.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return a.err
}

func (a *fakeAuditor) all() []store.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]store.Event(nil), a.events...)
}

type countingPacer struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (p *countingPacer) Wait(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits++
	return p.err
}

var errRPCDown = errors.New("connection refused")

type testService struct {
	*Service
	ledger   *fakeLedger
	sender   *fakeSender
	audit    *fakeAuditor
	pacer    *countingPacer
	treasury solana.PublicKey
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	ts := &testService{
		ledger:   newFakeLedger(),
		sender:   &fakeSender{},
		audit:    &fakeAuditor{},
		pacer:    &countingPacer{},
		treasury: solana.NewWallet().PublicKey(),
	}
	svc, err := NewService(ServiceConfig{
		Logger:     feesharetesting.NewLogger(),
		Chain:      ts.ledger,
		Sender:     ts.sender,
		Platform:   solana.NewWallet().PrivateKey,
		Treasury:   ts.treasury,
		BatchPacer: ts.pacer,
		Audit:      ts.audit,
	})
	require.NoError(t, err)
	ts.Service = svc
	return ts
}

var _ pacer.Pacer = (*countingPacer)(nil)
