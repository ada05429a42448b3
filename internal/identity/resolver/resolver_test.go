package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/persona/internal/identity"
)

type fakeRegistry struct {
	mu         sync.Mutex
	principals map[string]string
	vports     map[string]string
	calls      atomic.Int32
	creates    atomic.Int32
	err        error
	delay      time.Duration
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{principals: map[string]string{}, vports: map[string]string{}}
}

func (f *fakeRegistry) ResolveActorForPrincipal(_ context.Context, principalID string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.principals[principalID], nil
}

func (f *fakeRegistry) CreateActorForPrincipal(_ context.Context, principalID string) (string, error) {
	f.creates.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "actor-" + principalID
	f.principals[principalID] = id
	return id, nil
}

func (f *fakeRegistry) ResolveOrCreateActorForVport(_ context.Context, vportID string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.vports[vportID]; ok {
		return id, nil
	}
	id := "actor-v-" + vportID
	f.vports[vportID] = id
	return id, nil
}

func TestResolve_CitizenUsesExistingActor(t *testing.T) {
	reg := newFakeRegistry()
	reg.principals["u1"] = "actor-existing"
	r := New(Deps{Registry: reg})

	got, err := r.Resolve(context.Background(), "u1", identity.NewPersona(identity.KindCitizen, "u1", "", ""))
	require.NoError(t, err)
	assert.Equal(t, "actor-existing", got)
	assert.Zero(t, reg.creates.Load())
}

func TestResolve_CitizenBootstrapCreatesActor(t *testing.T) {
	reg := newFakeRegistry()
	r := New(Deps{Registry: reg})

	got, err := r.Resolve(context.Background(), "u1", identity.NewPersona(identity.KindCitizen, "u1", "", ""))
	require.NoError(t, err)
	assert.Equal(t, "actor-u1", got)
	assert.Equal(t, int32(1), reg.creates.Load())
	// resolve → create → re-resolve
	assert.Equal(t, int32(2), reg.calls.Load())
}

func TestResolve_CachedValuesSkipRegistry(t *testing.T) {
	reg := newFakeRegistry()
	r := New(Deps{Registry: reg})
	ctx := context.Background()

	p := identity.NewPersona(identity.KindVport, "v1", "", "")
	p.CachedActorID = "actor-known"
	got, err := r.Resolve(ctx, "u1", p)
	require.NoError(t, err)
	assert.Equal(t, "actor-known", got)
	assert.Zero(t, reg.calls.Load())

	p.CachedActorID = ""
	_, err = r.Resolve(ctx, "u1", p)
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "u1", p)
	require.NoError(t, err)
	assert.Equal(t, int32(1), reg.calls.Load(), "second resolution must hit the result cache")

	r.Reset()
	_, err = r.Resolve(ctx, "u1", p)
	require.NoError(t, err)
	assert.Equal(t, int32(2), reg.calls.Load())
}

func TestResolve_RememberSeedsCache(t *testing.T) {
	reg := newFakeRegistry()
	r := New(Deps{Registry: reg})
	r.Remember("u1", "vport:v1", "actor-from-elsewhere")
	r.Remember("u1", "vport:v2", "")

	got, err := r.Resolve(context.Background(), "u1", identity.NewPersona(identity.KindVport, "v1", "", ""))
	require.NoError(t, err)
	assert.Equal(t, "actor-from-elsewhere", got)
	assert.Zero(t, reg.calls.Load())
}

func TestResolve_ConcurrentCallsShareOneRoundTrip(t *testing.T) {
	reg := newFakeRegistry()
	reg.delay = 50 * time.Millisecond
	r := New(Deps{Registry: reg})
	p := identity.NewPersona(identity.KindVport, "v1", "", "")

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Resolve(context.Background(), "u1", p)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, "actor-v-v1", got)
	}
	assert.Equal(t, int32(1), reg.calls.Load())
}

// heldRegistry bloquea la resolución de vports hasta release (o hasta que se
// cancele el ctx que recibe).
type heldRegistry struct {
	fakeRegistry
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func newHeldRegistry() *heldRegistry {
	return &heldRegistry{
		fakeRegistry: fakeRegistry{principals: map[string]string{}, vports: map[string]string{}},
		gate:         make(chan struct{}),
		started:      make(chan struct{}),
	}
}

func (h *heldRegistry) ResolveOrCreateActorForVport(ctx context.Context, vportID string) (string, error) {
	h.calls.Add(1)
	h.once.Do(func() { close(h.started) })
	select {
	case <-h.gate:
		return "actor-v-" + vportID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestResolve_JoinedCallerSurvivesFirstCallerCancel(t *testing.T) {
	reg := newHeldRegistry()
	r := New(Deps{Registry: reg})
	p := identity.NewPersona(identity.KindVport, "v1", "", "")

	ctx1, cancel1 := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx1, "u1", p)
		first <- err
	}()
	select {
	case <-reg.started:
	case <-time.After(2 * time.Second):
		t.Fatal("registry never called")
	}

	type result struct {
		id  string
		err error
	}
	second := make(chan result, 1)
	go func() {
		id, err := r.Resolve(context.Background(), "u1", p)
		second <- result{id, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel1()
	err := <-first
	require.Error(t, err)
	assert.True(t, identity.IsTransient(err))
	assert.ErrorContains(t, err, context.Canceled.Error())

	close(reg.gate)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "actor-v-v1", got.id)
	assert.Equal(t, int32(1), reg.calls.Load())
}

func TestResolve_CallTimeoutBoundsSharedRound(t *testing.T) {
	reg := newHeldRegistry()
	defer close(reg.gate)
	r := New(Deps{Registry: reg, CallTimeout: 20 * time.Millisecond})

	_, err := r.Resolve(context.Background(), "u1", identity.NewPersona(identity.KindVport, "v1", "", ""))
	require.Error(t, err)
	assert.True(t, identity.IsTransient(err))
}

func TestResolve_RegistryErrorIsTransient(t *testing.T) {
	reg := newFakeRegistry()
	reg.err = errors.New("connection reset")
	r := New(Deps{Registry: reg})

	_, err := r.Resolve(context.Background(), "u1", identity.NewPersona(identity.KindVport, "v1", "", ""))
	require.Error(t, err)
	assert.True(t, identity.IsTransient(err))

	// un fallo no queda cacheado
	reg.err = nil
	got, err := r.Resolve(context.Background(), "u1", identity.NewPersona(identity.KindVport, "v1", "", ""))
	require.NoError(t, err)
	assert.Equal(t, "actor-v-v1", got)
}

func TestResolve_UnknownKind(t *testing.T) {
	r := New(Deps{Registry: newFakeRegistry()})
	_, err := r.Resolve(context.Background(), "u1", identity.Persona{AccountID: "org:1", Kind: "org", SourceID: "1"})
	assert.ErrorIs(t, err, identity.ErrUnknownKind)
}
