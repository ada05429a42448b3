// Package notifier publica las transiciones de ActiveIdentity a los suscriptores,
// suprimiendo las que no cambian nada.
package notifier

import (
	"context"
	"sync"

	"github.com/dropDatabas3/persona/internal/identity"
	"github.com/dropDatabas3/persona/internal/metrics"
	"github.com/dropDatabas3/persona/internal/observability/logger"
)

// Reason explica por qué se publicó una transición.
type Reason string

const (
	ReasonCommit          Reason = "commit"
	ReasonPrincipalChange Reason = "principal_change"
)

// Transition es un cambio real de identidad. Previous/Current son copias:
// los listeners pueden retenerlas sin copiar.
type Transition struct {
	Seq      uint64
	Previous *identity.ActiveIdentity
	Current  *identity.ActiveIdentity
	Reason   Reason
}

// Listener recibe transiciones en orden de publicación, desde su propia goroutine.
// Puede llamar de vuelta al state machine.
type Listener func(ctx context.Context, t Transition)

// Notifier compara snapshots por valor y reparte sólo cambios reales.
type Notifier struct {
	mu      sync.Mutex
	current *identity.ActiveIdentity
	seq     uint64
	nextID  int
	subs    map[int]*mailbox
	closed  bool
}

// New crea un Notifier sin identidad publicada.
func New() *Notifier {
	return &Notifier{subs: make(map[int]*mailbox)}
}

// Current devuelve una copia de la última identidad publicada (nil si ninguna).
func (n *Notifier) Current() *identity.ActiveIdentity {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current.Clone()
}

// Publish emite una transición si next difiere de la última publicada.
// Devuelve si hubo transición.
func (n *Notifier) Publish(ctx context.Context, next *identity.ActiveIdentity) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || n.current.Equal(next) {
		return false
	}
	n.emitLocked(ctx, next, ReasonCommit)
	return true
}

// Reset emite siempre, aunque next sea igual a la actual. Se usa en el cambio
// de principal para que nadie observe la identidad anterior bajo la sesión nueva.
func (n *Notifier) Reset(ctx context.Context, next *identity.ActiveIdentity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.emitLocked(ctx, next, ReasonPrincipalChange)
}

func (n *Notifier) emitLocked(ctx context.Context, next *identity.ActiveIdentity, reason Reason) {
	n.seq++
	t := Transition{
		Seq:      n.seq,
		Previous: n.current.Clone(),
		Current:  next.Clone(),
		Reason:   reason,
	}
	n.current = next.Clone()
	metrics.IdentityTransitions.WithLabelValues(string(reason)).Inc()

	log := logger.From(ctx).With(logger.Component("identity.notifier"), logger.Op("Publish"))
	if t.Current != nil {
		log = log.With(logger.ActorID(t.Current.ActorID), logger.String("type", string(t.Current.Type)))
	}
	log.Debug("identity transition", logger.String("reason", string(reason)), logger.Count(len(n.subs)))

	for _, mb := range n.subs {
		mb.push(t)
	}
}

// Subscribe registra un listener. La función devuelta lo da de baja; las
// transiciones encoladas antes de la baja pueden no entregarse.
func (n *Notifier) Subscribe(fn Listener) (cancel func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || fn == nil {
		return func() {}
	}
	id := n.nextID
	n.nextID++
	mb := newMailbox(fn)
	n.subs[id] = mb
	go mb.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			mb.close()
		})
	}
}

// Close detiene todos los mailboxes. Publicaciones posteriores se ignoran.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, mb := range n.subs {
		mb.close()
		delete(n.subs, id)
	}
}
