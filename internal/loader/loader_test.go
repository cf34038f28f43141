package loader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/riffid/internal/errs"
	"github.com/and161185/riffid/internal/principal"
)

func named(name string, data *principal.Data) Strategy {
	return Strategy{
		Name:   name,
		LoadFn: func(context.Context, int64) (*principal.Data, error) { return data, nil },
	}
}

func TestRegistry_FirstMatchByOrder(t *testing.T) {
	t.Parallel()

	late := named("local", &principal.Data{Fullname: "late"})
	early := named("local", &principal.Data{Fullname: "early"})
	other := named("redis", &principal.Data{Fullname: "other"})

	r := NewRegistry().
		Register(late, 10).
		Register(other, 0).
		Register(early, 5)

	l, err := r.Resolve("local")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	d, _ := l.Load(context.Background(), 1)
	if d.Fullname != "early" {
		t.Fatalf("want lowest-order match, got %q", d.Fullname)
	}
}

func TestRegistry_TiesKeepRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry().
		Register(named("x", &principal.Data{Fullname: "first"}), 1).
		Register(named("x", &principal.Data{Fullname: "second"}), 1)
	l, err := r.Resolve("x")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d, _ := l.Load(context.Background(), 1); d.Fullname != "first" {
		t.Fatalf("tie should keep registration order, got %q", d.Fullname)
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	t.Parallel()

	r := NewRegistry().Register(NewStatic(nil), 0)
	if _, err := r.Resolve("ldap"); !errors.Is(err, errs.ErrUnsupportedStrategy) {
		t.Fatalf("want ErrUnsupportedStrategy, got %v", err)
	}
	if _, err := NewRegistry().Resolve("local"); !errors.Is(err, errs.ErrUnsupportedStrategy) {
		t.Fatalf("empty registry: want ErrUnsupportedStrategy, got %v", err)
	}
}

func TestStrategy_CustomMatch(t *testing.T) {
	t.Parallel()

	s := Strategy{Match: func(v string) bool { return v == "a" || v == "b" }}
	if !s.Supports("b") || s.Supports("c") {
		t.Fatalf("custom match not honored")
	}
	if d, err := s.Load(context.Background(), 1); d != nil || err != nil {
		t.Fatalf("nil LoadFn should load nothing")
	}
}

func TestEnrich(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := principal.New(principal.Passport{UserID: 42})
	p.AppendAuthorities("x")

	// nil data: unchanged
	if err := Enrich(ctx, NewStatic(nil), p); err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got := p.Authorities(); len(got) != 1 {
		t.Fatalf("nil data changed the principal: %v", got)
	}

	st := NewStatic(map[int64]principal.Data{42: {Fullname: "Alice", Roles: []string{"admin"}}})
	if err := Enrich(ctx, st, p); err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if p.Fullname != "Alice" || !p.HasRole("admin") || !p.HasAuthority("admin") || !p.HasAuthority("x") {
		t.Fatalf("data not injected: %+v %v", p, p.Authorities())
	}

	boom := errors.New("boom")
	failing := Strategy{LoadFn: func(context.Context, int64) (*principal.Data, error) { return nil, boom }}
	if err := Enrich(ctx, failing, p); !errors.Is(err, boom) {
		t.Fatalf("want loader error, got %v", err)
	}
}

func TestStatic_ReturnsCopies(t *testing.T) {
	t.Parallel()

	st := NewStatic(map[int64]principal.Data{1: {Roles: []string{"a"}}})
	d, _ := st.Load(context.Background(), 1)
	d.Roles[0] = "mutated"
	d2, _ := st.Load(context.Background(), 1)
	if d2.Roles[0] != "a" {
		t.Fatalf("Static leaked internal state")
	}
	if !st.Supports(StrategyLocal) || st.Supports(StrategyRedis) {
		t.Fatalf("unexpected Supports")
	}
}

type countingLoader struct {
	calls int
	err   error
	data  *principal.Data
}

func (c *countingLoader) Supports(s string) bool { return s == "counting" }
func (c *countingLoader) Load(context.Context, int64) (*principal.Data, error) {
	c.calls++
	return c.data, c.err
}

func TestCached(t *testing.T) {
	t.Parallel()

	inner := &countingLoader{data: &principal.Data{Fullname: "A"}}
	c := NewCached(inner, 16, time.Minute)
	ctx := context.Background()

	for range 3 {
		d, err := c.Load(ctx, 1)
		if err != nil || d.Fullname != "A" {
			t.Fatalf("Load = %v, %v", d, err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("want 1 inner call, got %d", inner.calls)
	}

	c.Invalidate(1)
	_, _ = c.Load(ctx, 1)
	if inner.calls != 2 {
		t.Fatalf("invalidate should force a reload, calls=%d", inner.calls)
	}

	inner.err = errors.New("down")
	if _, err := c.Load(ctx, 2); err == nil {
		t.Fatalf("want error")
	}
	inner.err = nil
	_, _ = c.Load(ctx, 2)
	if inner.calls != 4 {
		t.Fatalf("errors must not be cached, calls=%d", inner.calls)
	}
	if !c.Supports("counting") {
		t.Fatalf("Supports should delegate")
	}
}

type fakeRepo struct {
	data map[int64]*principal.Data
	err  error
}

func (f fakeRepo) GetPrincipalData(_ context.Context, id int64) (*principal.Data, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.data[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return d, nil
}

func TestRepositoryLoader(t *testing.T) {
	t.Parallel()

	l := NewRepository(fakeRepo{data: map[int64]*principal.Data{1: {Fullname: "A"}}})
	if !l.Supports(StrategyPostgres) {
		t.Fatalf("should support postgres")
	}
	d, err := l.Load(context.Background(), 1)
	if err != nil || d.Fullname != "A" {
		t.Fatalf("Load = %v, %v", d, err)
	}
	d, err = l.Load(context.Background(), 2)
	if err != nil || d != nil {
		t.Fatalf("unknown user should load nothing, got %v, %v", d, err)
	}

	boom := errors.New("boom")
	if _, err := NewRepository(fakeRepo{err: boom}).Load(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("want repo error, got %v", err)
	}
}
