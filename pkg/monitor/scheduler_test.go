package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/0xmhha/stealth-monitor-go/internal/testutil"
	"github.com/0xmhha/stealth-monitor-go/pkg/events"
	"github.com/0xmhha/stealth-monitor-go/pkg/notify"
	"github.com/0xmhha/stealth-monitor-go/pkg/registry"
	"github.com/0xmhha/stealth-monitor-go/pkg/storage"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// fakeSource serves a fixed head and the subset of its logs that fall in
// the requested range.
type fakeSource struct {
	mu      sync.Mutex
	head    uint64
	headErr error
	logs    []coretypes.Log

	fetchErr   error // fails every fetch
	failOnCall int   // fails only the nth fetch (1-based)
	fetches    [][2]uint64
}

func (f *fakeSource) HeadHeight(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.head, nil
}

func (f *fakeSource) FetchLogs(ctx context.Context, addresses []common.Address, topics [][]common.Hash, fromBlock, toBlock uint64) ([]coretypes.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetches = append(f.fetches, [2]uint64{fromBlock, toBlock})
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.failOnCall > 0 && len(f.fetches) == f.failOnCall {
		return nil, fmt.Errorf("fetch %d failed", f.failOnCall)
	}

	var out []coretypes.Log
	for _, log := range f.logs {
		if log.BlockNumber >= fromBlock && log.BlockNumber <= toBlock {
			out = append(out, log)
		}
	}
	return out, nil
}

func (f *fakeSource) fetchCalls() [][2]uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][2]uint64, len(f.fetches))
	copy(out, f.fetches)
	return out
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []*types.StealthEvent
	users  []*types.MonitoredUser
}

func (n *fakeNotifier) MaybeNotify(ctx context.Context, event *types.StealthEvent, user *types.MonitoredUser) (notify.Outcome, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.users = append(n.users, user)
	return notify.Notified, nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*types.StealthEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, event *types.StealthEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type staticSource struct {
	users []*types.MonitoredUser
}

func (s *staticSource) ListEnabled(ctx context.Context) ([]*types.MonitoredUser, error) {
	return s.users, nil
}

type cursorFailStore struct {
	storage.Store
	getErr error
}

func (s *cursorFailStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.Get(ctx, key)
}

type schedulerFixture struct {
	sched     *scheduler
	source    *fakeSource
	notifier  *fakeNotifier
	publisher *fakePublisher
	store     storage.Store
	state     *ChainState
}

func testScanConfig() ScanConfig {
	return ScanConfig{
		BaseInterval:    10 * time.Millisecond,
		MaxInterval:     100 * time.Millisecond,
		MaxBlockRange:   50,
		MaxFailureCount: 10,
		StartOffset:     100,
		FetchAttempts:   1,
		FetchRetryDelay: time.Millisecond,
	}
}

// newTestScheduler wires a scheduler around the fake source with one
// registered user and a fresh in-memory store.
func newTestScheduler(t *testing.T, source *fakeSource, scan ScanConfig, store storage.Store) *schedulerFixture {
	t.Helper()

	if store == nil {
		memory := storage.NewMemoryStore(0)
		t.Cleanup(func() { memory.Close() })
		store = memory
	}

	logger := testutil.NewTestLogger(t)
	users := registry.NewRegistry(&staticSource{users: []*types.MonitoredUser{{
		UserID:  "user-1",
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Prefs:   types.NotificationPrefs{Announcements: true, Registrations: true},
	}}}, logger)
	if err := users.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	notifier := &fakeNotifier{}
	publisher := &fakePublisher{}
	state := NewChainState("sepolia", 11155111, scan.BaseInterval)

	sched := newScheduler(ChainConfig{
		Name:        "sepolia",
		ChainID:     11155111,
		RPCEndpoint: "http://localhost:8545",
	}, scan, state, schedulerDeps{
		source:    source,
		processor: events.NewProcessor(events.NewDedupSet(1000), logger),
		users:     users,
		notifier:  notifier,
		publisher: publisher,
		store:     store,
		logger:    logger,
	})

	return &schedulerFixture{
		sched:     sched,
		source:    source,
		notifier:  notifier,
		publisher: publisher,
		store:     store,
		state:     state,
	}
}

// seedCursor positions the scheduler as if a previous run had processed
// up to the given block.
func (f *schedulerFixture) seedCursor(block uint64) {
	f.state.SetLastProcessedBlock(block)
	f.sched.cursorLoaded = true
}

func (f *schedulerFixture) storedCursor(t *testing.T) uint64 {
	t.Helper()
	raw, err := f.store.Get(context.Background(), storage.ChainCursorKey("sepolia"))
	if err != nil {
		t.Fatalf("cursor read error = %v", err)
	}
	block, err := storage.DecodeBlockNumber(raw)
	if err != nil {
		t.Fatalf("cursor decode error = %v", err)
	}
	return block
}

func TestRunCycleSingleWindow(t *testing.T) {
	source := &fakeSource{head: 1050}
	fix := newTestScheduler(t, source, testScanConfig(), nil)
	fix.seedCursor(1000)

	outcome := fix.sched.runCycle(context.Background())
	if outcome != cycleOutcomeOK {
		t.Fatalf("outcome = %q, want %q", outcome, cycleOutcomeOK)
	}

	fetches := source.fetchCalls()
	if len(fetches) != 1 {
		t.Fatalf("fetch calls = %d, want 1", len(fetches))
	}
	if fetches[0] != [2]uint64{1001, 1050} {
		t.Errorf("fetch range = %v, want [1001 1050]", fetches[0])
	}
	if got := fix.state.LastProcessedBlock(); got != 1050 {
		t.Errorf("LastProcessedBlock() = %d, want 1050", got)
	}
	if got := fix.storedCursor(t); got != 1050 {
		t.Errorf("stored cursor = %d, want 1050", got)
	}
}

func TestRunCycleWindowSplit(t *testing.T) {
	scan := testScanConfig()
	scan.MaxBlockRange = 100
	source := &fakeSource{head: 350}
	fix := newTestScheduler(t, source, scan, nil)
	fix.seedCursor(100)

	outcome := fix.sched.runCycle(context.Background())
	if outcome != cycleOutcomeOK {
		t.Fatalf("outcome = %q, want %q", outcome, cycleOutcomeOK)
	}

	want := [][2]uint64{{101, 200}, {201, 300}, {301, 350}}
	fetches := source.fetchCalls()
	if len(fetches) != len(want) {
		t.Fatalf("fetch calls = %v, want %v", fetches, want)
	}
	for i := range want {
		if fetches[i] != want[i] {
			t.Errorf("fetch %d = %v, want %v", i, fetches[i], want[i])
		}
	}
	if got := fix.state.LastProcessedBlock(); got != 350 {
		t.Errorf("LastProcessedBlock() = %d, want 350", got)
	}
}

func TestRunCycleIdle(t *testing.T) {
	tests := []struct {
		name string
		last uint64
		head uint64
	}{
		{"caught up", 1050, 1050},
		{"ahead of head", 1050, 1049},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSource{head: tt.head}
			fix := newTestScheduler(t, source, testScanConfig(), nil)
			fix.seedCursor(tt.last)

			outcome := fix.sched.runCycle(context.Background())
			if outcome != cycleOutcomeIdle {
				t.Fatalf("outcome = %q, want %q", outcome, cycleOutcomeIdle)
			}
			if len(source.fetchCalls()) != 0 {
				t.Errorf("fetch calls = %d, want 0", len(source.fetchCalls()))
			}
			if got := fix.state.LastProcessedBlock(); got != tt.last {
				t.Errorf("LastProcessedBlock() = %d, want %d", got, tt.last)
			}
		})
	}
}

func TestRunCycleHeadError(t *testing.T) {
	source := &fakeSource{headErr: errors.New("rpc down")}
	fix := newTestScheduler(t, source, testScanConfig(), nil)
	fix.seedCursor(1000)

	outcome := fix.sched.runCycle(context.Background())
	if outcome != cycleOutcomeError {
		t.Fatalf("outcome = %q, want %q", outcome, cycleOutcomeError)
	}
}

func TestRunCyclePartialProgress(t *testing.T) {
	scan := testScanConfig()
	scan.MaxBlockRange = 100
	source := &fakeSource{head: 350, failOnCall: 2}
	fix := newTestScheduler(t, source, scan, nil)
	fix.seedCursor(100)

	outcome := fix.sched.runCycle(context.Background())
	if outcome != cycleOutcomeError {
		t.Fatalf("outcome = %q, want %q", outcome, cycleOutcomeError)
	}

	// The first window's progress survives the second window's failure,
	// so the next cycle resumes at block 201.
	if got := fix.state.LastProcessedBlock(); got != 200 {
		t.Errorf("LastProcessedBlock() = %d, want 200", got)
	}
	if got := fix.storedCursor(t); got != 200 {
		t.Errorf("stored cursor = %d, want 200", got)
	}

	source.failOnCall = 0
	outcome = fix.sched.runCycle(context.Background())
	if outcome != cycleOutcomeOK {
		t.Fatalf("retry outcome = %q, want %q", outcome, cycleOutcomeOK)
	}
	if got := fix.state.LastProcessedBlock(); got != 350 {
		t.Errorf("LastProcessedBlock() after retry = %d, want 350", got)
	}
}

func TestRunCycleCanceled(t *testing.T) {
	source := &fakeSource{head: 1050}
	fix := newTestScheduler(t, source, testScanConfig(), nil)
	fix.seedCursor(1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := fix.sched.runCycle(ctx)
	if outcome != cycleOutcomeCanceled {
		t.Fatalf("outcome = %q, want %q", outcome, cycleOutcomeCanceled)
	}
	if len(source.fetchCalls()) != 0 {
		t.Errorf("fetch calls = %d, want 0", len(source.fetchCalls()))
	}
}

func TestRunCycleEvents(t *testing.T) {
	caller := common.HexToAddress("0x3333333333333333333333333333333333333333")
	stealth := common.HexToAddress("0x4444444444444444444444444444444444444444")

	source := &fakeSource{
		head: 1050,
		logs: []coretypes.Log{
			*testutil.NewAnnouncementLog(1010, 0, caller, stealth, []byte{0x02, 0x01}, []byte{0xab}),
			*testutil.NewRegistrationLog(1020, 1, caller, []byte{0x0a, 0x0b}),
			// Unknown signature, dropped by the processor.
			{
				Topics:      []common.Hash{common.HexToHash("0x01")},
				BlockNumber: 1030,
				TxHash:      testutil.TestTxHash(1030, 2),
				Index:       2,
			},
		},
	}
	fix := newTestScheduler(t, source, testScanConfig(), nil)
	fix.seedCursor(1000)

	outcome := fix.sched.runCycle(context.Background())
	if outcome != cycleOutcomeOK {
		t.Fatalf("outcome = %q, want %q", outcome, cycleOutcomeOK)
	}

	if fix.publisher.count() != 2 {
		t.Fatalf("published events = %d, want 2", fix.publisher.count())
	}
	if kind := fix.publisher.events[0].Kind; kind != types.EventKindAnnouncement {
		t.Errorf("first event kind = %q, want announcement", kind)
	}
	if kind := fix.publisher.events[1].Kind; kind != types.EventKindRegistration {
		t.Errorf("second event kind = %q, want registration", kind)
	}
	if chain := fix.publisher.events[0].ChainName; chain != "sepolia" {
		t.Errorf("event chain = %q, want sepolia", chain)
	}
	if id := fix.publisher.events[0].ChainID; id != 11155111 {
		t.Errorf("event chain id = %d, want 11155111", id)
	}

	// One registered user, two decoded events.
	if fix.notifier.count() != 2 {
		t.Errorf("notifier calls = %d, want 2", fix.notifier.count())
	}

	// Re-processing the same window is a no-op: identities are already in
	// the dedup set.
	if err := fix.sched.processWindow(context.Background(), 1001, 1050); err != nil {
		t.Fatalf("processWindow() error = %v", err)
	}
	if fix.publisher.count() != 2 {
		t.Errorf("published events after replay = %d, want 2", fix.publisher.count())
	}
	if fix.notifier.count() != 2 {
		t.Errorf("notifier calls after replay = %d, want 2", fix.notifier.count())
	}
}

func TestRunCyclePublishFailureStillNotifies(t *testing.T) {
	caller := common.HexToAddress("0x3333333333333333333333333333333333333333")
	stealth := common.HexToAddress("0x4444444444444444444444444444444444444444")

	source := &fakeSource{
		head: 1050,
		logs: []coretypes.Log{
			*testutil.NewAnnouncementLog(1010, 0, caller, stealth, []byte{0x02, 0x01}, []byte{0xab}),
		},
	}
	fix := newTestScheduler(t, source, testScanConfig(), nil)
	fix.seedCursor(1000)
	fix.publisher.err = errors.New("broker down")

	outcome := fix.sched.runCycle(context.Background())
	if outcome != cycleOutcomeOK {
		t.Fatalf("outcome = %q, want %q", outcome, cycleOutcomeOK)
	}
	if fix.notifier.count() != 1 {
		t.Errorf("notifier calls = %d, want 1", fix.notifier.count())
	}
	if got := fix.state.LastProcessedBlock(); got != 1050 {
		t.Errorf("LastProcessedBlock() = %d, want 1050", got)
	}
}

func TestRestoreCursor(t *testing.T) {
	t.Run("persisted cursor", func(t *testing.T) {
		source := &fakeSource{head: 5000}
		fix := newTestScheduler(t, source, testScanConfig(), nil)

		key := storage.ChainCursorKey("sepolia")
		if err := fix.store.Set(context.Background(), key, storage.EncodeBlockNumber(4321), 0); err != nil {
			t.Fatalf("seed cursor: %v", err)
		}

		if err := fix.sched.restoreCursor(context.Background()); err != nil {
			t.Fatalf("restoreCursor() error = %v", err)
		}
		if got := fix.state.LastProcessedBlock(); got != 4321 {
			t.Errorf("LastProcessedBlock() = %d, want 4321", got)
		}
		if !fix.sched.cursorLoaded {
			t.Error("cursorLoaded = false, want true")
		}
	})

	t.Run("missing cursor starts behind head", func(t *testing.T) {
		source := &fakeSource{head: 500}
		fix := newTestScheduler(t, source, testScanConfig(), nil)

		if err := fix.sched.restoreCursor(context.Background()); err != nil {
			t.Fatalf("restoreCursor() error = %v", err)
		}
		if got := fix.state.LastProcessedBlock(); got != 400 {
			t.Errorf("LastProcessedBlock() = %d, want 400", got)
		}
	})

	t.Run("corrupt cursor falls back", func(t *testing.T) {
		source := &fakeSource{head: 500}
		fix := newTestScheduler(t, source, testScanConfig(), nil)

		key := storage.ChainCursorKey("sepolia")
		if err := fix.store.Set(context.Background(), key, []byte("junk"), 0); err != nil {
			t.Fatalf("seed cursor: %v", err)
		}

		if err := fix.sched.restoreCursor(context.Background()); err != nil {
			t.Fatalf("restoreCursor() error = %v", err)
		}
		if got := fix.state.LastProcessedBlock(); got != 400 {
			t.Errorf("LastProcessedBlock() = %d, want 400", got)
		}
	})

	t.Run("offset exceeding head starts at genesis", func(t *testing.T) {
		source := &fakeSource{head: 50}
		fix := newTestScheduler(t, source, testScanConfig(), nil)

		if err := fix.sched.restoreCursor(context.Background()); err != nil {
			t.Fatalf("restoreCursor() error = %v", err)
		}
		if got := fix.state.LastProcessedBlock(); got != 0 {
			t.Errorf("LastProcessedBlock() = %d, want 0", got)
		}
	})

	t.Run("store read error falls back", func(t *testing.T) {
		memory := storage.NewMemoryStore(0)
		defer memory.Close()
		store := &cursorFailStore{Store: memory, getErr: errors.New("store down")}

		source := &fakeSource{head: 500}
		fix := newTestScheduler(t, source, testScanConfig(), store)

		if err := fix.sched.restoreCursor(context.Background()); err != nil {
			t.Fatalf("restoreCursor() error = %v", err)
		}
		if got := fix.state.LastProcessedBlock(); got != 400 {
			t.Errorf("LastProcessedBlock() = %d, want 400", got)
		}
	})

	t.Run("head failure is retryable", func(t *testing.T) {
		source := &fakeSource{headErr: errors.New("rpc down")}
		fix := newTestScheduler(t, source, testScanConfig(), nil)

		if err := fix.sched.restoreCursor(context.Background()); err == nil {
			t.Fatal("restoreCursor() error = nil, want error")
		}
		if fix.sched.cursorLoaded {
			t.Error("cursorLoaded = true, want false")
		}
	})
}

func TestRunDisablesChain(t *testing.T) {
	scan := testScanConfig()
	scan.MaxFailureCount = 2
	source := &fakeSource{headErr: errors.New("rpc down")}
	fix := newTestScheduler(t, source, scan, nil)
	fix.seedCursor(1000)

	done := make(chan struct{})
	go func() {
		fix.sched.run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run() did not return after reaching the failure limit")
	}

	if !fix.state.Disabled() {
		t.Error("Disabled() = false, want true")
	}
	if got := fix.state.ConsecutiveFailures(); got != 2 {
		t.Errorf("ConsecutiveFailures() = %d, want 2", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	source := &fakeSource{head: 100}
	fix := newTestScheduler(t, source, testScanConfig(), nil)
	fix.seedCursor(100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fix.sched.run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	if fix.state.Disabled() {
		t.Error("Disabled() = true, want false")
	}
}
