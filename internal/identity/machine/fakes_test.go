package machine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/persona/internal/cache"
	"github.com/dropDatabas3/persona/internal/identity"
	"github.com/dropDatabas3/persona/internal/identity/notifier"
	"github.com/dropDatabas3/persona/internal/identity/personacache"
	"github.com/dropDatabas3/persona/internal/identity/resolver"
)

var errBackendDown = errors.New("backend down")

// fakeDirectory devuelve listas por principal. Si gate no es nil, cada llamada
// espera a que se cierre (o a que se cancele el ctx).
type fakeDirectory struct {
	mu    sync.Mutex
	lists map[string]identity.PersonaList
	err   error
	gate  chan struct{}
	calls int
}

func (d *fakeDirectory) ListPersonas(ctx context.Context, principalID string) (identity.PersonaList, error) {
	d.mu.Lock()
	d.calls++
	gate, err := d.gate, d.err
	list := d.lists[principalID]
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return identity.PersonaList{}, ctx.Err()
		}
	}
	if err != nil {
		return identity.PersonaList{}, err
	}
	return list, nil
}

func (d *fakeDirectory) set(principalID string, l identity.PersonaList) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lists == nil {
		d.lists = map[string]identity.PersonaList{}
	}
	d.lists[principalID] = l
}

func (d *fakeDirectory) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDirectory) setGate(g chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = g
}

func (d *fakeDirectory) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// gatedRegistry permite retrasar la resolución de cada vport por separado
// para forzar completaciones fuera de orden.
type gatedRegistry struct {
	mu       sync.Mutex
	gates    map[string]chan struct{}
	started  map[string]chan struct{}
	failing  map[string]error
	vportCnt map[string]int
	// principalErr hace fallar la resolución de actores citizen.
	principalErr error
}

func newGatedRegistry() *gatedRegistry {
	return &gatedRegistry{
		gates:    map[string]chan struct{}{},
		started:  map[string]chan struct{}{},
		failing:  map[string]error{},
		vportCnt: map[string]int{},
	}
}

func (r *gatedRegistry) hold(vportID string) (release func(), started <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := make(chan struct{})
	s := make(chan struct{})
	r.gates[vportID] = g
	r.started[vportID] = s
	var once sync.Once
	return func() { once.Do(func() { close(g) }) }, s
}

func (r *gatedRegistry) fail(vportID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failing, vportID)
		return
	}
	r.failing[vportID] = err
}

func (r *gatedRegistry) count(vportID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vportCnt[vportID]
}

func (r *gatedRegistry) failPrincipal(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.principalErr = err
}

func (r *gatedRegistry) ResolveActorForPrincipal(_ context.Context, principalID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.principalErr != nil {
		return "", r.principalErr
	}
	return "actor-" + principalID, nil
}

func (r *gatedRegistry) CreateActorForPrincipal(_ context.Context, principalID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.principalErr != nil {
		return "", r.principalErr
	}
	return "actor-" + principalID, nil
}

func (r *gatedRegistry) ResolveOrCreateActorForVport(ctx context.Context, vportID string) (string, error) {
	r.mu.Lock()
	r.vportCnt[vportID]++
	gate := r.gates[vportID]
	started := r.started[vportID]
	delete(r.started, vportID)
	err := r.failing[vportID]
	r.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return "actor-v-" + vportID, nil
}

// navHint es un hint de navegación mutable para tests.
type navHint struct {
	mu    sync.Mutex
	vport string
}

func (n *navHint) set(v string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.vport = v
}

func (n *navHint) hint() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.vport, n.vport != ""
}

// transitions acumula lo que publica el notifier.
type transitions struct {
	mu sync.Mutex
	ts []notifier.Transition
}

func (t *transitions) listen(_ context.Context, tr notifier.Transition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ts = append(t.ts, tr)
}

func (t *transitions) all() []notifier.Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]notifier.Transition(nil), t.ts...)
}

type harness struct {
	dir   *fakeDirectory
	reg   *gatedRegistry
	store *personacache.Store
	kv    cache.Client
	nav   *navHint
	m     *Machine
	rec   *transitions
}

func citizen(id string) *identity.Persona {
	p := identity.NewPersona(identity.KindCitizen, id, "Citizen "+id, "")
	return &p
}

func vport(id string) identity.Persona {
	return identity.NewPersona(identity.KindVport, id, "Vport "+id, "")
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	kv := cache.NewMemory("")
	h := &harness{
		dir:   &fakeDirectory{},
		reg:   newGatedRegistry(),
		kv:    kv,
		store: personacache.New(kv),
		nav:   &navHint{},
		rec:   &transitions{},
	}
	h.dir.set("u1", identity.PersonaList{Citizen: citizen("u1"), Vports: []identity.Persona{vport("v1"), vport("v2")}})
	h.m = h.newMachine(cfg)
	h.m.Subscribe(h.rec.listen)
	t.Cleanup(h.m.Close)
	return h
}

// newMachine crea un state machine nuevo sobre el mismo cache durable
// (simula un reinicio del proceso).
func (h *harness) newMachine(cfg Config) *Machine {
	return New(Deps{
		Directory:  h.dir,
		Resolver:   resolver.New(resolver.Deps{Registry: h.reg}),
		Cache:      h.store,
		Navigation: h.nav.hint,
	}, cfg)
}

func (h *harness) hydrate(t *testing.T, principalID string) {
	t.Helper()
	require.NoError(t, h.m.Hydrate(context.Background(), identity.Principal{ID: principalID}))
}

func waitTransitions(t *testing.T, rec *transitions, n int) []notifier.Transition {
	t.Helper()
	require.Eventually(t, func() bool { return len(rec.all()) >= n }, 2*time.Second, 5*time.Millisecond)
	return rec.all()
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resolution to start")
	}
}
