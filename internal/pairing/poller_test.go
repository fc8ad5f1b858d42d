package pairing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leosozza/evowhats/internal/domain"
)

var fast = Config{Interval: 5 * time.Millisecond, Timeout: time.Second}

func TestPollerDeliversCodeOnceThenPairs(t *testing.T) {
	var calls int32
	var wantCodes []bool
	var mu sync.Mutex
	fetch := func(_ context.Context, wantCode bool) (Snapshot, error) {
		n := atomic.AddInt32(&calls, 1)
		mu.Lock()
		wantCodes = append(wantCodes, wantCode)
		mu.Unlock()
		switch {
		case n < 3:
			return Snapshot{Code: "QR-1", State: "connecting"}, nil
		case n < 5:
			return Snapshot{Code: "QR-2", State: "connecting"}, nil
		default:
			return Snapshot{State: "OPEN"}, nil
		}
	}
	var codes []string
	p := NewPoller(fetch, fast, OnCode(func(code string) { codes = append(codes, code) }))

	out := p.Run(context.Background())
	if out.State != StatePaired || out.Err != nil {
		t.Fatalf("outcome = %+v", out)
	}
	if len(codes) != 1 || codes[0] != "QR-1" || out.Code != "QR-1" {
		t.Fatalf("codes = %v, outcome code = %q", codes, out.Code)
	}
	if out.Ticks != 5 {
		t.Fatalf("ticks = %d", out.Ticks)
	}
	mu.Lock()
	defer mu.Unlock()
	if !wantCodes[0] || wantCodes[1] {
		t.Fatalf("wantCode flags = %v", wantCodes)
	}
}

func TestPollerTimesOut(t *testing.T) {
	var calls int32
	fetch := func(context.Context, bool) (Snapshot, error) {
		atomic.AddInt32(&calls, 1)
		return Snapshot{State: "connecting"}, nil
	}
	p := NewPoller(fetch, Config{Interval: 5 * time.Millisecond, Timeout: 40 * time.Millisecond})

	start := time.Now()
	out := p.Run(context.Background())
	if out.State != StateTimedOut || !domain.IsKind(out.Err, domain.KindTimedOut) {
		t.Fatalf("outcome = %+v", out)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("loop overran its timeout")
	}
	if p.State() != StateTimedOut {
		t.Fatalf("state = %s", p.State())
	}
	after := atomic.LoadInt32(&calls)
	time.Sleep(30 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != after {
		t.Fatalf("fetches after timeout: %d -> %d", after, n)
	}
}

func TestPollerStopCancels(t *testing.T) {
	fetch := func(context.Context, bool) (Snapshot, error) {
		return Snapshot{State: "qr"}, nil
	}
	p := NewPoller(fetch, Config{Interval: time.Hour, Timeout: time.Hour})
	done := p.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	p.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleep was not interrupted by Stop")
	}
	out := p.Outcome()
	if out.State != StateCancelled || !domain.IsKind(out.Err, domain.KindCancelled) {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestPollerStopInsideTickPreventsNextFetch(t *testing.T) {
	const stopAt = 3
	var calls int32
	fetch := func(context.Context, bool) (Snapshot, error) {
		atomic.AddInt32(&calls, 1)
		return Snapshot{State: "connecting"}, nil
	}
	var p *Poller
	p = NewPoller(fetch, fast, OnTick(func(Snapshot) {
		if atomic.LoadInt32(&calls) == stopAt {
			p.Stop()
		}
	}))

	out := p.Run(context.Background())
	if out.State != StateCancelled || out.Ticks != stopAt {
		t.Fatalf("outcome = %+v", out)
	}
	time.Sleep(30 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != stopAt {
		t.Fatalf("fetch calls = %d, want %d", n, stopAt)
	}
}

func TestPollerSkipsFetchErrors(t *testing.T) {
	var calls int32
	fetch := func(context.Context, bool) (Snapshot, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return Snapshot{}, errors.New("gateway 502")
		}
		return Snapshot{State: "ready"}, nil
	}
	out := NewPoller(fetch, fast).Run(context.Background())
	if out.State != StatePaired {
		t.Fatalf("outcome = %+v", out)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestPollerWithoutFetcher(t *testing.T) {
	out := NewPoller(nil, fast).Run(context.Background())
	if out.State != StateError || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestPollerStartWhileRunningJoins(t *testing.T) {
	var inFlight, maxInFlight, calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, _ bool) (Snapshot, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		atomic.AddInt32(&calls, 1)
		select {
		case <-release:
			return Snapshot{State: "online"}, nil
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
	p := NewPoller(fetch, fast)
	first := p.Start(context.Background())
	second := p.Start(context.Background())
	if first != second {
		t.Fatal("second Start should join the running loop")
	}
	close(release)
	<-first
	if p.Outcome().State != StatePaired {
		t.Fatalf("outcome = %+v", p.Outcome())
	}
	if atomic.LoadInt32(&maxInFlight) != 1 || atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("max in flight = %d, calls = %d", maxInFlight, calls)
	}
}

func TestPollerStopWhileIdleIsNoop(t *testing.T) {
	p := NewPoller(func(context.Context, bool) (Snapshot, error) { return Snapshot{}, nil }, fast)
	p.Stop()
	if p.State() != StateIdle {
		t.Fatalf("state = %s", p.State())
	}
}

func TestPollerHookPanicsAreContained(t *testing.T) {
	fetch := func(context.Context, bool) (Snapshot, error) {
		return Snapshot{Code: "c", State: "connected"}, nil
	}
	p := NewPoller(fetch, fast,
		OnCode(func(string) { panic("code hook") }),
		OnTick(func(Snapshot) { panic("tick hook") }))
	if out := p.Run(context.Background()); out.State != StatePaired {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestIsConnected(t *testing.T) {
	for _, s := range []string{"connected", "OPEN", "Ready", " online "} {
		if !IsConnected(s) {
			t.Errorf("%q should be connected", s)
		}
	}
	for _, s := range []string{"", "connecting", "close", "qr"} {
		if IsConnected(s) {
			t.Errorf("%q should not be connected", s)
		}
	}
}

func TestNormalizeQR(t *testing.T) {
	if got, _ := NormalizeQR(""); got != "" {
		t.Fatalf("empty payload -> %q", got)
	}
	uri := "data:image/png;base64,AAAA"
	if got, _ := NormalizeQR(uri); got != uri {
		t.Fatalf("data uri changed: %q", got)
	}
	if got, _ := NormalizeQR("iVBORw0KGgoAAAA"); got != pngPrefix+"iVBORw0KGgoAAAA" {
		t.Fatalf("bare base64 -> %q", got)
	}
	got, err := NormalizeQR("2@Zx9y,abc,def==")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, pngPrefix+"iVBORw0KGgo") {
		t.Fatalf("raw code not rendered as png: %.40s", got)
	}
}
