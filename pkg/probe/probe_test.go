package probe

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"mercator-hq/triage/pkg/facts"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func constProbe(key string, v facts.Value) Probe {
	return Func(func(ctx context.Context, req *Request) (*Result, error) {
		return &Result{State: StateOK, Facts: map[string]facts.Value{key: v}}, nil
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("pattern", constProbe("x", facts.Bool(true))); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("pattern", constProbe("x", facts.Bool(true))); !errors.Is(err, ErrDuplicateKind) {
		t.Errorf("duplicate Register = %v, want ErrDuplicateKind", err)
	}
	r.MustRegister("archive", constProbe("y", facts.Number(1)))

	if _, ok := r.Lookup("ole"); ok {
		t.Error("Lookup found an unregistered kind")
	}
	if got := r.Kinds(); len(got) != 2 || got[0] != "archive" || got[1] != "pattern" {
		t.Errorf("Kinds() = %v", got)
	}
}

func TestScheduler_Run(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("ok", constProbe("found", facts.Bool(true)))
	r.MustRegister("broken", Func(func(ctx context.Context, req *Request) (*Result, error) {
		return nil, errors.New("truncated header")
	}))
	r.MustRegister("panics", Func(func(ctx context.Context, req *Request) (*Result, error) {
		panic("index out of range")
	}))
	r.MustRegister("silent", Func(func(ctx context.Context, req *Request) (*Result, error) {
		return nil, nil
	}))
	r.MustRegister("stateless", Func(func(ctx context.Context, req *Request) (*Result, error) {
		return &Result{}, nil
	}))

	tests := []struct {
		kind      string
		wantState State
		wantErr   error
	}{
		{"ok", StateOK, nil},
		{"stateless", StateOK, nil},
		{"missing", StateError, ErrProbeUnavailable},
		{"broken", StateError, ErrProbeFailed},
		{"panics", StateError, ErrProbeFailed},
		{"silent", StateError, ErrProbeFailed},
	}

	s := NewScheduler(r, 2, nil)
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			out := s.Run(context.Background(), &Request{Binding: "b", Kind: tt.kind})
			if out.Result.State != tt.wantState {
				t.Errorf("state = %s, want %s", out.Result.State, tt.wantState)
			}
			if !errors.Is(out.Err, tt.wantErr) {
				t.Errorf("err = %v, want %v", out.Err, tt.wantErr)
			}
			if out.Failed() != (tt.wantState == StateError) {
				t.Errorf("Failed() = %v", out.Failed())
			}
		})
	}
}

func TestScheduler_Run_Cancelled(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("ok", constProbe("found", facts.Bool(true)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewScheduler(r, 1, nil).Run(ctx, &Request{Binding: "b", Kind: "ok"})
	if !errors.Is(out.Err, context.Canceled) || out.Result.State != StateError {
		t.Errorf("Run on a cancelled context = %v, %s", out.Err, out.Result.State)
	}
}

func TestScheduler_RunWave(t *testing.T) {
	var running, peak atomic.Int32
	slow := Func(func(ctx context.Context, req *Request) (*Result, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return &Result{Facts: map[string]facts.Value{"binding": facts.Label(req.Binding)}}, nil
	})

	r := NewRegistry()
	r.MustRegister("slow", slow)

	names := []string{"header", "meta", "objects", "fonts", "streams", "xref"}
	reqs := make([]*Request, len(names))
	for i, n := range names {
		reqs[i] = &Request{Binding: n, Kind: "slow"}
	}
	reqs = append(reqs, &Request{Binding: "ghost", Kind: "missing"})

	outcomes := NewScheduler(r, 3, nil).RunWave(context.Background(), reqs)

	if len(outcomes) != len(reqs) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(reqs))
	}
	for i, n := range names {
		got := outcomes[i].Result.Facts["binding"]
		if got != facts.Label(n) {
			t.Errorf("outcome %d = %s, want the result of %s", i, got, n)
		}
	}
	if !errors.Is(outcomes[len(names)].Err, ErrProbeUnavailable) {
		t.Errorf("missing kind outcome = %v", outcomes[len(names)].Err)
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency %d exceeds the limit of 3", p)
	}
}

func TestResult_Keys(t *testing.T) {
	r := &Result{Facts: map[string]facts.Value{
		"has_openaction": facts.Bool(false),
		"has_javascript": facts.Bool(true),
		"objects":        facts.Number(3),
	}}
	got := r.Keys()
	want := []string{"has_javascript", "has_openaction", "objects"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", got, want)
		}
	}
}
