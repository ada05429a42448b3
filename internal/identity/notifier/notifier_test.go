package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/persona/internal/identity"
)

type recorder struct {
	mu sync.Mutex
	ts []Transition
}

func (r *recorder) listen(_ context.Context, t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ts = append(r.ts, t)
}

func (r *recorder) snapshot() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.ts...)
}

func (r *recorder) waitFor(t *testing.T, n int) []Transition {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.snapshot()) >= n }, time.Second, 5*time.Millisecond)
	return r.snapshot()
}

func user(actor string) *identity.ActiveIdentity {
	return &identity.ActiveIdentity{Type: identity.TypeUser, UserID: "u1", ActorID: actor}
}

func TestPublish_DeduplicatesByValue(t *testing.T) {
	n := New()
	defer n.Close()
	rec := &recorder{}
	n.Subscribe(rec.listen)
	ctx := context.Background()

	assert.True(t, n.Publish(ctx, user("a1")))
	assert.False(t, n.Publish(ctx, user("a1")), "same value must not notify")
	assert.True(t, n.Publish(ctx, user("a2")))
	assert.True(t, n.Publish(ctx, nil))

	ts := rec.waitFor(t, 3)
	require.Len(t, ts, 3)
	assert.Nil(t, ts[0].Previous)
	assert.Equal(t, "a1", ts[0].Current.ActorID)
	assert.Equal(t, "a2", ts[1].Current.ActorID)
	assert.Nil(t, ts[2].Current)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{ts[0].Seq, ts[1].Seq, ts[2].Seq})
}

func TestReset_AlwaysEmits(t *testing.T) {
	n := New()
	defer n.Close()
	rec := &recorder{}
	n.Subscribe(rec.listen)
	ctx := context.Background()

	n.Reset(ctx, nil)
	ts := rec.waitFor(t, 1)
	assert.Equal(t, ReasonPrincipalChange, ts[0].Reason)
	assert.Nil(t, n.Current())
}

func TestCurrentIsACopy(t *testing.T) {
	n := New()
	id := user("a1")
	n.Publish(context.Background(), id)
	id.ActorID = "mutated"
	got := n.Current()
	assert.Equal(t, "a1", got.ActorID)
	got.ActorID = "mutated again"
	assert.Equal(t, "a1", n.Current().ActorID)
}

func TestListenerMayReenterNotifier(t *testing.T) {
	n := New()
	defer n.Close()
	seen := make(chan *identity.ActiveIdentity, 4)
	n.Subscribe(func(_ context.Context, tr Transition) {
		// re-entrar no debe bloquear
		seen <- n.Current()
	})
	n.Publish(context.Background(), user("a1"))

	select {
	case got := <-seen:
		require.NotNil(t, got)
	case <-time.After(time.Second):
		t.Fatal("listener blocked")
	}
}

func TestOrderingUnderBurst(t *testing.T) {
	n := New()
	defer n.Close()
	rec := &recorder{}
	n.Subscribe(rec.listen)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		n.Publish(ctx, user(string(rune('a'+i%26))+string(rune('0'+i/26))))
	}
	ts := rec.waitFor(t, 100)
	for i := range ts {
		assert.Equal(t, uint64(i+1), ts[i].Seq)
	}
}

func TestUnsubscribeAndClose(t *testing.T) {
	n := New()
	rec := &recorder{}
	cancel := n.Subscribe(rec.listen)
	ctx := context.Background()

	n.Publish(ctx, user("a1"))
	rec.waitFor(t, 1)
	cancel()
	cancel()
	n.Publish(ctx, user("a2"))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)

	n.Close()
	assert.False(t, n.Publish(ctx, user("a3")))
	n.Subscribe(rec.listen)()
}
