// Package machine implementa el state machine de identidad activa.
//
// Un Machine por sesión, construido en el composition root. Todas las
// operaciones son seguras para uso concurrente. Las llamadas al Directory
// Service y al Actor Registry corren sin el lock, y cada commit se valida
// contra el switch epoch para que gane siempre el último switch pedido.
//
// El cache durable es la excepción: Load, Save* y Clear se llaman con el lock
// tomado y se tratan como sincrónicas, así el orden de escritura es el orden
// de los commits y un Clear no puede quedar pisado por un snapshot viejo. Con
// el backend redis eso es un round-trip por escritura; con file, un fsync.
package machine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dropDatabas3/persona/internal/identity"
	"github.com/dropDatabas3/persona/internal/identity/notifier"
	"github.com/dropDatabas3/persona/internal/identity/personacache"
	"github.com/dropDatabas3/persona/internal/metrics"
	"github.com/dropDatabas3/persona/internal/observability/logger"
)

// Machine es el IdentityStateMachine.
type Machine struct {
	deps Deps
	cfg  Config

	mu        sync.Mutex
	principal string
	phase     Phase
	accounts  []identity.Persona
	actors    map[identity.AccountID]string
	active    identity.AccountID
	current   *identity.ActiveIdentity
	pending   identity.AccountID
	epoch     uint64
	// gen cambia con cada cambio de principal; invalida todo lo que estaba en vuelo.
	gen     uint64
	loading int
	lastErr error
}

// New construye el state machine.
func New(deps Deps, cfg Config) *Machine {
	if deps.Notifier == nil {
		deps.Notifier = notifier.New()
	}
	if p, ok := ParseNavigationPolicy(string(cfg.NavigationPolicy)); ok {
		cfg.NavigationPolicy = p
	} else {
		cfg.NavigationPolicy = PolicyRouteUnlessOtherVport
	}
	return &Machine{
		deps:   deps,
		cfg:    cfg,
		phase:  PhaseUninitialized,
		actors: map[identity.AccountID]string{},
	}
}

func (m *Machine) log(ctx context.Context, op string) *zap.Logger {
	return logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("identity.machine"),
		logger.Op(op),
	)
}

// Subscribe registra un listener de transiciones de identidad.
func (m *Machine) Subscribe(fn notifier.Listener) (cancel func()) {
	return m.deps.Notifier.Subscribe(fn)
}

// Close detiene el notifier.
func (m *Machine) Close() {
	m.deps.Notifier.Close()
}

// Identity devuelve una copia de la identidad comprometida (nil si ninguna).
func (m *Machine) Identity() *identity.ActiveIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

// Status devuelve el estado completo para lectura.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		Phase:           m.phase,
		PrincipalID:     m.principal,
		Loading:         m.loading > 0,
		Err:             m.lastErr,
		Accounts:        append([]identity.Persona(nil), m.accounts...),
		ActiveAccountID: m.active,
		Identity:        m.current.Clone(),
		Epoch:           m.epoch,
	}
	if m.lastErr != nil {
		st.Error = m.lastErr.Error()
	}
	return st
}

// =================================================================================
// HYDRATION
// =================================================================================

// Hydrate arranca (o re-arranca) la sesión del principal. Publica primero lo
// que haya en el cache durable, sin tocar la red, y después reconcilia con el
// Directory Service. Si el principal es otro, limpia todo antes.
func (m *Machine) Hydrate(ctx context.Context, principal identity.Principal) error {
	if principal.ID == "" {
		return identity.ErrNoPrincipal
	}
	ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.PrincipalID(principal.ID)))
	log := m.log(ctx, "Hydrate")

	m.mu.Lock()
	if m.principal != "" && m.principal != principal.ID {
		log.Info("principal changed, clearing identity state", zap.String("previous_principal_id", m.principal))
		m.resetLocked(ctx)
	}
	if m.phase == PhaseUninitialized {
		m.principal = principal.ID
		m.seedFromCacheLocked(ctx)
		m.phase = PhaseHydrating
	}
	gen, startEpoch := m.gen, m.epoch
	m.loading++
	m.mu.Unlock()

	list, err := m.deps.Directory.ListPersonas(ctx, principal.ID)

	m.mu.Lock()
	m.loading--
	if gen != m.gen {
		m.mu.Unlock()
		log.Debug("hydration superseded by principal change")
		return nil
	}
	if err != nil {
		m.lastErr = fmt.Errorf("%w: list personas: %v", identity.ErrTransientResolution, err)
		if m.current != nil {
			m.phase = PhaseReady
		}
		hydErr := m.lastErr
		m.mu.Unlock()
		log.Warn("directory fetch failed, keeping cached identity", logger.Err(err))
		return hydErr
	}
	m.mergeLocked(ctx, list)

	var target identity.AccountID
	if m.epoch != startEpoch {
		// hubo un switch explícito mientras se hidrataba: respetarlo
		target = m.active
		if m.pending != "" {
			target = m.pending
		}
		if _, ok := m.findLocked(target); !ok {
			target = m.citizenLocked()
		} else {
			if m.current != nil {
				m.phase = PhaseReady
			}
			m.mu.Unlock()
			log.Debug("keeping selection made during hydration", logger.AccountID(target.String()))
			return nil
		}
	} else {
		target = m.chooseLocked(ctx)
	}

	if target == "" {
		m.clearActiveLocked(ctx)
		m.phase = PhaseReady
		m.mu.Unlock()
		log.Info("principal has no personas")
		return nil
	}
	m.mu.Unlock()

	log.Debug("hydration selected persona", logger.AccountID(target.String()))
	if err := m.switchTo(ctx, target, true); err != nil {
		return err
	}

	m.mu.Lock()
	if gen == m.gen && m.current != nil {
		m.phase = PhaseReady
	}
	m.mu.Unlock()
	return nil
}

// seedFromCacheLocked carga el estado durable y publica la identidad cacheada.
func (m *Machine) seedFromCacheLocked(ctx context.Context) {
	snap := m.deps.Cache.Load(ctx, m.principal)
	for k, v := range snap.Actors {
		m.actors[k] = v
	}
	m.accounts = m.accounts[:0]
	for _, p := range snap.Accounts {
		if p.CachedActorID == "" {
			p.CachedActorID = m.actors[p.AccountID]
		} else if m.actors[p.AccountID] == "" {
			m.actors[p.AccountID] = p.CachedActorID
		}
		m.accounts = append(m.accounts, p)
	}

	p, ok := m.findLocked(snap.Active)
	if !ok {
		return
	}
	id, err := identity.IdentityFor(m.principal, p, m.actors[p.AccountID])
	if err != nil {
		return
	}
	m.active = p.AccountID
	m.current = id
	m.deps.Notifier.Publish(ctx, id.Clone())
	m.log(ctx, "Hydrate").Debug("published cached identity",
		logger.AccountID(p.AccountID.String()),
		logger.ActorID(id.ActorID),
	)
}

// chooseLocked aplica la precedencia: ruta (según política) → selección
// cacheada que siga vigente → citizen.
func (m *Machine) chooseLocked(ctx context.Context) identity.AccountID {
	stored := m.active
	_, storedOK := m.findLocked(stored)

	var navAcc identity.AccountID
	navOK := false
	if m.cfg.NavigationPolicy != PolicyIgnore && m.deps.Navigation != nil {
		if vportID, ok := m.deps.Navigation(); ok && vportID != "" {
			navAcc = identity.NewAccountID(identity.KindVport, vportID)
			_, navOK = m.findLocked(navAcc)
		}
	}

	switch m.cfg.NavigationPolicy {
	case PolicyRouteAlways:
		if navOK {
			return navAcc
		}
	case PolicyStoredFirst:
		if storedOK {
			return stored
		}
		if navOK {
			return navAcc
		}
	case PolicyRouteUnlessOtherVport:
		if navOK {
			otherResolvedVport := storedOK &&
				stored.Kind() == identity.KindVport &&
				stored != navAcc &&
				m.actors[stored] != ""
			if !otherResolvedVport {
				return navAcc
			}
			m.log(ctx, "Hydrate").Debug("route vport ignored, stored selection is another resolved vport",
				logger.AccountID(stored.String()))
		}
	case PolicyIgnore:
	}

	if storedOK {
		return stored
	}
	return m.citizenLocked()
}

// =================================================================================
// SWITCH
// =================================================================================

// SwitchAccount activa la persona indicada. Es no-op si ya está activa.
// Un id que no está en la lista devuelve identity.ErrInvalidSwitchTarget sin
// mutar nada. Si un switch posterior gana la carrera, éste devuelve nil y su
// resultado se descarta.
func (m *Machine) SwitchAccount(ctx context.Context, acc identity.AccountID) error {
	return m.switchTo(ctx, acc, false)
}

// ActAsUser activa la persona citizen.
func (m *Machine) ActAsUser(ctx context.Context) error {
	m.mu.Lock()
	citizen := m.citizenLocked()
	m.mu.Unlock()
	if citizen == "" {
		metrics.SwitchTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: no citizen persona", identity.ErrInvalidSwitchTarget)
	}
	return m.switchTo(ctx, citizen, false)
}

// ActAsVport activa la persona del vport indicado.
func (m *Machine) ActAsVport(ctx context.Context, vportID string) error {
	return m.switchTo(ctx, identity.NewAccountID(identity.KindVport, vportID), false)
}

func (m *Machine) switchTo(ctx context.Context, acc identity.AccountID, force bool) error {
	log := m.log(ctx, "SwitchAccount").With(logger.AccountID(acc.String()))

	m.mu.Lock()
	if m.principal == "" {
		m.mu.Unlock()
		return identity.ErrNoPrincipal
	}
	p, ok := m.findLocked(acc)
	if !ok {
		m.mu.Unlock()
		metrics.SwitchTotal.WithLabelValues("invalid").Inc()
		log.Debug("switch target not in persona list")
		return fmt.Errorf("%w: %s", identity.ErrInvalidSwitchTarget, acc)
	}
	if !force && acc == m.active && m.current != nil && m.current.ActorID != "" {
		if m.pending != "" {
			// volver a la activa cancela el switch en vuelo
			m.epoch++
			m.pending = ""
			metrics.ActiveEpoch.Set(float64(m.epoch))
		}
		m.mu.Unlock()
		metrics.SwitchTotal.WithLabelValues("noop").Inc()
		return nil
	}

	m.epoch++
	e, gen, principal := m.epoch, m.gen, m.principal
	m.pending = acc
	m.loading++
	metrics.ActiveEpoch.Set(float64(e))
	m.mu.Unlock()

	rctx := ctx
	if m.cfg.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, m.cfg.ResolveTimeout)
		defer cancel()
	}
	actorID, err := m.deps.Resolver.Resolve(rctx, principal, p)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading--

	if e != m.epoch || gen != m.gen {
		metrics.SwitchTotal.WithLabelValues("stale").Inc()
		log.Debug("stale resolution discarded",
			logger.Epoch(e),
			zap.Uint64("current_epoch", m.epoch),
			zap.NamedError("cause", identity.ErrStaleResolution),
		)
		return nil
	}
	m.pending = ""

	if err != nil {
		m.lastErr = err
		metrics.SwitchTotal.WithLabelValues("error").Inc()
		log.Warn("actor resolution failed, keeping previous identity", logger.Err(err))
		return err
	}

	// la persona pudo desaparecer mientras se resolvía
	p, ok = m.findLocked(acc)
	if !ok {
		metrics.SwitchTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: %s removed during resolution", identity.ErrInvalidSwitchTarget, acc)
	}

	if err := m.commitLocked(ctx, p, actorID); err != nil {
		m.lastErr = err
		metrics.SwitchTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.SwitchTotal.WithLabelValues("committed").Inc()
	log.Info("identity committed", logger.ActorID(m.current.ActorID), logger.Epoch(e))
	return nil
}

// commitLocked fija la persona activa, mergea el actor id, escribe al cache y
// notifica si la identidad visible cambió.
func (m *Machine) commitLocked(ctx context.Context, p identity.Persona, actorID string) error {
	if actorID == "" && p.AccountID == m.active && m.current != nil {
		// nunca volver a null mientras la persona siga activa
		actorID = m.current.ActorID
	}
	if actorID == "" {
		actorID = m.actors[p.AccountID]
	}

	next, err := identity.IdentityFor(m.principal, p, actorID)
	if err != nil {
		return err
	}

	if actorID != "" {
		m.mergeActorLocked(p.AccountID, actorID)
	}
	m.active = p.AccountID
	m.current = next
	m.lastErr = nil
	m.phase = PhaseReady

	m.deps.Cache.Save(ctx, m.principal, personacache.Snapshot{
		Accounts: m.accounts,
		Actors:   m.actors,
		Active:   m.active,
	})

	m.deps.Notifier.Publish(ctx, next.Clone())
	return nil
}

// =================================================================================
// ACCOUNT LIST
// =================================================================================

// AddAccount agrega (o actualiza) una persona en la lista.
func (m *Machine) AddAccount(ctx context.Context, p identity.Persona) error {
	p, err := p.Normalize()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.principal == "" {
		return identity.ErrNoPrincipal
	}

	if p.CachedActorID == "" {
		p.CachedActorID = m.actors[p.AccountID]
	}
	if i, ok := m.indexLocked(p.AccountID); ok {
		if p.CachedActorID == "" {
			p.CachedActorID = m.accounts[i].CachedActorID
		}
		m.accounts[i] = p
	} else {
		m.accounts = append(m.accounts, p)
	}
	m.mergeActorLocked(p.AccountID, p.CachedActorID)

	m.deps.Cache.SaveAccounts(ctx, m.principal, m.accounts)
	m.deps.Cache.SaveActors(ctx, m.principal, m.actors)
	m.log(ctx, "AddAccount").Debug("persona added", logger.AccountID(p.AccountID.String()))
	return nil
}

// RemoveAccount quita una persona. Si era la activa, cae a la citizen (o a
// ninguna identidad si no hay citizen, caso sólo posible antes de hidratar).
func (m *Machine) RemoveAccount(ctx context.Context, acc identity.AccountID) error {
	log := m.log(ctx, "RemoveAccount").With(logger.AccountID(acc.String()))

	m.mu.Lock()
	if m.principal == "" {
		m.mu.Unlock()
		return identity.ErrNoPrincipal
	}
	i, ok := m.indexLocked(acc)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", identity.ErrAccountNotFound, acc)
	}
	m.accounts = append(m.accounts[:i], m.accounts[i+1:]...)
	delete(m.actors, acc)
	if m.pending == acc {
		m.epoch++
		m.pending = ""
		metrics.ActiveEpoch.Set(float64(m.epoch))
	}
	m.deps.Cache.SaveAccounts(ctx, m.principal, m.accounts)
	m.deps.Cache.SaveActors(ctx, m.principal, m.actors)

	if acc != m.active {
		m.mu.Unlock()
		log.Debug("persona removed")
		return nil
	}

	citizen := m.citizenLocked()
	if citizen == "" {
		m.clearActiveLocked(ctx)
		m.mu.Unlock()
		log.Info("active persona removed, no citizen persona to fall back to")
		return nil
	}
	m.mu.Unlock()

	log.Info("active persona removed, falling back to citizen")
	return m.fallbackToCitizen(ctx, citizen)
}

// RefreshAccounts vuelve a pedir la lista al Directory Service. Si la persona
// activa ya no está, cae a la citizen; si está, no la toca.
func (m *Machine) RefreshAccounts(ctx context.Context) error {
	log := m.log(ctx, "RefreshAccounts")

	m.mu.Lock()
	if m.principal == "" {
		m.mu.Unlock()
		return identity.ErrNoPrincipal
	}
	principal, gen := m.principal, m.gen
	m.loading++
	m.mu.Unlock()

	list, err := m.deps.Directory.ListPersonas(ctx, principal)

	m.mu.Lock()
	m.loading--
	if gen != m.gen {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.lastErr = fmt.Errorf("%w: list personas: %v", identity.ErrTransientResolution, err)
		refreshErr := m.lastErr
		m.mu.Unlock()
		log.Warn("refresh failed, keeping current state", logger.Err(err))
		return refreshErr
	}
	m.mergeLocked(ctx, list)

	if _, ok := m.findLocked(m.active); ok && m.active != "" {
		if m.current != nil {
			m.phase = PhaseReady
		}
		m.mu.Unlock()
		return nil
	}

	citizen := m.citizenLocked()
	if citizen == "" {
		m.clearActiveLocked(ctx)
		m.phase = PhaseReady
		m.mu.Unlock()
		log.Info("no personas left after refresh")
		return nil
	}
	m.mu.Unlock()

	log.Info("active persona gone after refresh, falling back to citizen")
	return m.fallbackToCitizen(ctx, citizen)
}

// fallbackToCitizen activa la citizen después de que la persona activa salió
// de la lista. Si la resolución falla, la identidad removida no se conserva:
// se comitea la citizen con su actor id conocido o se queda sin identidad.
func (m *Machine) fallbackToCitizen(ctx context.Context, citizen identity.AccountID) error {
	err := m.switchTo(ctx, citizen, true)
	if err == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.findLocked(m.active); ok || m.current == nil {
		// otro switch ya dejó un estado consistente
		return err
	}

	log := m.log(ctx, "fallbackToCitizen").With(logger.AccountID(m.active.String()), logger.Err(err))
	if p, ok := m.findLocked(citizen); ok && m.actors[citizen] != "" {
		if cerr := m.commitLocked(ctx, p, m.actors[citizen]); cerr == nil {
			m.lastErr = err
			log.Warn("citizen resolution failed, using last known actor id")
			return err
		}
	}

	if m.pending != "" {
		// hay un switch en vuelo: no invalidarlo, sólo soltar la identidad removida
		m.active = ""
		m.current = nil
		m.deps.Cache.SaveActive(ctx, m.principal, "")
		m.deps.Notifier.Publish(ctx, nil)
	} else {
		m.clearActiveLocked(ctx)
	}
	m.lastErr = err
	log.Warn("citizen resolution failed, dropping removed identity")
	return err
}

// ReconcileActor recibe de otro subsistema el actor id de un vport (p. ej.
// recién creado). Los vports ajenos se ignoran.
func (m *Machine) ReconcileActor(ctx context.Context, vportID, actorID string) error {
	acc := identity.NewAccountID(identity.KindVport, vportID)
	log := m.log(ctx, "ReconcileActor").With(logger.AccountID(acc.String()), logger.ActorID(actorID))

	m.mu.Lock()
	if m.principal == "" {
		m.mu.Unlock()
		return identity.ErrNoPrincipal
	}
	if _, ok := m.findLocked(acc); !ok {
		m.mu.Unlock()
		log.Debug("ignoring foreign vport")
		return nil
	}
	if actorID != "" {
		m.mergeActorLocked(acc, actorID)
		m.deps.Cache.SaveAccounts(ctx, m.principal, m.accounts)
		m.deps.Cache.SaveActors(ctx, m.principal, m.actors)
	}

	viewing := false
	if m.deps.Navigation != nil {
		if nav, ok := m.deps.Navigation(); ok && nav == vportID {
			viewing = true
		}
	}
	shouldSwitch := m.active == acc ||
		m.active == "" ||
		(m.active.Kind() == identity.KindCitizen && viewing)
	m.mu.Unlock()

	if !shouldSwitch {
		return nil
	}
	return m.switchTo(ctx, acc, true)
}

// =================================================================================
// SIGN OUT / PRINCIPAL CHANGE
// =================================================================================

// SignOut borra el estado durable del principal y publica "sin identidad".
func (m *Machine) SignOut(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.principal == "" {
		return nil
	}
	m.log(ctx, "SignOut").Info("signing out", logger.PrincipalID(m.principal))
	m.resetLocked(ctx)
	return nil
}

// resetLocked limpia cache, resolver y estado en memoria, invalida todo lo que
// esté en vuelo y publica nil antes de que arranque la sesión siguiente.
func (m *Machine) resetLocked(ctx context.Context) {
	m.deps.Cache.Clear(ctx, m.principal)
	m.deps.Resolver.Reset()

	m.principal = ""
	m.phase = PhaseUninitialized
	m.accounts = nil
	m.actors = map[identity.AccountID]string{}
	m.active = ""
	m.current = nil
	m.pending = ""
	m.lastErr = nil
	m.epoch++
	m.gen++
	metrics.ActiveEpoch.Set(float64(m.epoch))

	m.deps.Notifier.Reset(ctx, nil)
}

// =================================================================================
// HELPERS
// =================================================================================

func (m *Machine) indexLocked(acc identity.AccountID) (int, bool) {
	for i := range m.accounts {
		if m.accounts[i].AccountID == acc {
			return i, true
		}
	}
	return -1, false
}

func (m *Machine) findLocked(acc identity.AccountID) (identity.Persona, bool) {
	if i, ok := m.indexLocked(acc); ok {
		return m.accounts[i], true
	}
	return identity.Persona{}, false
}

func (m *Machine) citizenLocked() identity.AccountID {
	for _, p := range m.accounts {
		if p.Kind == identity.KindCitizen {
			return p.AccountID
		}
	}
	return ""
}

// mergeActorLocked registra un actor id conocido. Nunca pisa con vacío.
func (m *Machine) mergeActorLocked(acc identity.AccountID, actorID string) {
	if actorID == "" {
		return
	}
	m.actors[acc] = actorID
	if i, ok := m.indexLocked(acc); ok {
		m.accounts[i].CachedActorID = actorID
	}
	m.deps.Resolver.Remember(m.principal, acc, actorID)
}

// mergeLocked reemplaza la lista con la del Directory Service conservando los
// actor ids ya conocidos, y escribe al cache.
func (m *Machine) mergeLocked(ctx context.Context, list identity.PersonaList) {
	fresh := list.All()
	merged := make([]identity.Persona, 0, len(fresh))
	seen := make(map[identity.AccountID]struct{}, len(fresh))
	for _, p := range fresh {
		np, err := p.Normalize()
		if err != nil {
			m.log(ctx, "merge").Warn("dropping invalid persona from directory", logger.Err(err))
			continue
		}
		if _, dup := seen[np.AccountID]; dup {
			continue
		}
		seen[np.AccountID] = struct{}{}
		if np.CachedActorID != "" {
			m.actors[np.AccountID] = np.CachedActorID
		} else {
			np.CachedActorID = m.actors[np.AccountID]
		}
		merged = append(merged, np)
	}
	m.accounts = merged

	m.deps.Cache.SaveAccounts(ctx, m.principal, m.accounts)
	m.deps.Cache.SaveActors(ctx, m.principal, m.actors)
}

// clearActiveLocked deja al principal sin persona activa.
func (m *Machine) clearActiveLocked(ctx context.Context) {
	m.epoch++
	m.pending = ""
	m.active = ""
	m.current = nil
	metrics.ActiveEpoch.Set(float64(m.epoch))
	m.deps.Cache.SaveActive(ctx, m.principal, "")
	m.deps.Notifier.Publish(ctx, nil)
}
