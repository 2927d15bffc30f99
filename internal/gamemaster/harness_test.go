package gamemaster

import (
	"bytes"
	"context"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"paddlers.io/internal/persistence/gateway"
	"paddlers.io/internal/persistence/journal"
	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/persistence/store/sqlite"
	"paddlers.io/internal/protocol"
	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/event"
	"paddlers.io/internal/sim/failure"
	"paddlers.io/internal/sim/tuning"
)

var epoch = clock.FromSeconds(1_700_000_000)

type memRecorder struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (r *memRecorder) Record(e journal.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memRecorder) all() []journal.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]journal.Entry(nil), r.entries...)
}

func (r *memRecorder) last(k event.Kind) (journal.Entry, bool) {
	all := r.all()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Kind == k {
			return all[i], true
		}
	}
	return journal.Entry{}, false
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testTuning never spawns attacks unless a test turns it on.
func testTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.Attacks.SpawnChance = 0
	t.Attacks.HurriedChance = 0
	return t
}

type harness struct {
	c    *Coordinator
	gw   *gateway.Gateway
	clk  *clock.Manual
	rec  *memRecorder
	logs *syncBuffer
}

func newHarness(t *testing.T, tun tuning.Tuning) *harness {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "paddlers.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	logs := &syncBuffer{}
	logger := log.New(logs, "[test] ", 0)
	gw := gateway.New(st, 2, logger)
	t.Cleanup(func() {
		gw.Close()
		_ = st.Close()
	})
	h := &harness{gw: gw, clk: clock.NewManual(epoch), rec: &memRecorder{}, logs: logs}
	h.c, err = New(Options{Gateway: gw, Tuning: tun, Clock: h.clk, Logger: logger, Journal: h.rec})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return h
}

// restart builds a second coordinator with an empty queue over the same
// store, as after a process restart.
func (h *harness) restart(t *testing.T) *Coordinator {
	t.Helper()
	c, err := New(Options{Gateway: h.gw, Tuning: h.c.tun, Clock: h.clk, Logger: log.New(h.logs, "[restart] ", 0)})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c
}

func (h *harness) exec(t *testing.T, cmd protocol.Command) protocol.Result {
	t.Helper()
	res, err := h.c.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("%s: %v", cmd.CommandType(), err)
	}
	return res
}

// advance moves the clock and lets every worker catch up.
func (h *harness) advance(t *testing.T, d time.Duration) {
	t.Helper()
	h.clk.Advance(d)
	if _, err := h.c.ProcessDue(context.Background()); err != nil {
		t.Fatalf("process due: %v", err)
	}
}

func (h *harness) village(t *testing.T, id int64) store.Village {
	t.Helper()
	v, err := gateway.Query(context.Background(), h.gw, "test", func(ctx context.Context, s store.Store) (store.Village, error) {
		return s.GetVillage(ctx, id)
	})
	if err != nil {
		t.Fatalf("get village %d: %v", id, err)
	}
	return v
}

func (h *harness) units(t *testing.T, villageID int64, kind store.UnitKind) []store.Unit {
	t.Helper()
	all, err := gateway.Query(context.Background(), h.gw, "test", func(ctx context.Context, s store.Store) ([]store.Unit, error) {
		return s.ListUnits(ctx, villageID)
	})
	if err != nil {
		t.Fatalf("list units: %v", err)
	}
	var out []store.Unit
	for _, u := range all {
		if u.Kind == kind {
			out = append(out, u)
		}
	}
	return out
}

func (h *harness) attack(t *testing.T, id int64) store.Attack {
	t.Helper()
	a, err := gateway.Query(context.Background(), h.gw, "test", func(ctx context.Context, s store.Store) (store.Attack, error) {
		return s.GetAttack(ctx, id)
	})
	if err != nil {
		t.Fatalf("get attack %d: %v", id, err)
	}
	return a
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("err=nil want %s", code)
	}
	if got := failure.CodeOf(err); got != code {
		t.Fatalf("code=%s want=%s (err=%v)", got, code, err)
	}
}

func countKind(evs []event.Event, k event.Kind) int {
	n := 0
	for _, ev := range evs {
		if ev.Kind == k {
			n++
		}
	}
	return n
}
