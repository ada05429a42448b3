package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/persona/internal/http/errors"
	"github.com/dropDatabas3/persona/internal/http/middlewares"
	"github.com/dropDatabas3/persona/internal/identity"
	"github.com/dropDatabas3/persona/internal/identity/machine"
)

// Machine es lo que la API necesita del state machine de identidad.
type Machine interface {
	Hydrate(ctx context.Context, principal identity.Principal) error
	SignOut(ctx context.Context) error
	Status() machine.Status
	SwitchAccount(ctx context.Context, acc identity.AccountID) error
	ActAsUser(ctx context.Context) error
	ActAsVport(ctx context.Context, vportID string) error
	AddAccount(ctx context.Context, p identity.Persona) error
	RemoveAccount(ctx context.Context, acc identity.AccountID) error
	RefreshAccounts(ctx context.Context) error
	ReconcileActor(ctx context.Context, vportID, actorID string) error
}

// Ownership autoriza el control de un actor.
type Ownership interface {
	Authorize(ctx context.Context, actorID, principalID string) error
}

type Deps struct {
	Machine    Machine
	Ownership  Ownership
	Navigation *NavState
	// Directory confirma las personas que llegan por POST /v1/accounts.
	// Sin Directory sólo se acepta la citizen del propio principal.
	Directory identity.DirectoryService
}

// IdentityHandler expone el state machine de la sesión.
type IdentityHandler struct {
	m   Machine
	own Ownership
	nav *NavState
	dir identity.DirectoryService
}

func NewIdentityHandler(d Deps) *IdentityHandler {
	nav := d.Navigation
	if nav == nil {
		nav = &NavState{}
	}
	return &IdentityHandler{m: d.Machine, own: d.Ownership, nav: nav, dir: d.Directory}
}

// Register monta las rutas /v1. Auth la aplica el router.
func (h *IdentityHandler) Register(r chi.Router) {
	r.Post("/session", h.startSession)
	r.Delete("/session", h.signOut)

	r.Get("/identity", h.status)
	r.Post("/identity/switch", h.switchAccount)
	r.Post("/identity/act-as-user", h.actAsUser)
	r.Post("/identity/act-as-vport/{vportID}", h.actAsVport)

	r.Post("/accounts", h.addAccount)
	r.Post("/accounts/refresh", h.refreshAccounts)
	r.Delete("/accounts/{accountID}", h.removeAccount)

	r.Post("/actors/reconcile", h.reconcileActor)
	r.Put("/navigation", h.setNavigation)
	r.Get("/ownership/{actorID}", h.ownership)
}

// sessionOf verifica que el principal del request sea el de la sesión activa.
func (h *IdentityHandler) sessionOf(w http.ResponseWriter, r *http.Request) bool {
	p, ok := middlewares.GetPrincipal(r.Context())
	if !ok {
		errors.WriteError(w, r, errors.ErrTokenMissing)
		return false
	}
	if h.m.Status().PrincipalID != p.ID {
		errors.WriteError(w, r, errors.ErrNoSession.WithDetail("POST /v1/session first"))
		return false
	}
	return true
}

// respond devuelve el Status actual, o el error si la operación falló.
func (h *IdentityHandler) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.m.Status())
}

func (h *IdentityHandler) startSession(w http.ResponseWriter, r *http.Request) {
	p, ok := middlewares.GetPrincipal(r.Context())
	if !ok {
		errors.WriteError(w, r, errors.ErrTokenMissing)
		return
	}
	err := h.m.Hydrate(r.Context(), p)
	st := h.m.Status()
	if err != nil && st.Identity == nil {
		errors.WriteError(w, r, err)
		return
	}
	// con identidad cacheada un fallo del directorio no es fatal: viaja en st.Error
	writeJSON(w, http.StatusOK, st)
}

func (h *IdentityHandler) signOut(w http.ResponseWriter, r *http.Request) {
	if !h.sessionOf(w, r) {
		return
	}
	if err := h.m.SignOut(r.Context()); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	h.nav.Set("")
	w.WriteHeader(http.StatusNoContent)
}

func (h *IdentityHandler) status(w http.ResponseWriter, r *http.Request) {
	if !h.sessionOf(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, h.m.Status())
}

type switchRequest struct {
	AccountID string `json:"account_id"`
}

func (h *IdentityHandler) switchAccount(w http.ResponseWriter, r *http.Request) {
	if !h.sessionOf(w, r) {
		return
	}
	var req switchRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AccountID) == "" {
		errors.WriteError(w, r, errors.ErrMissingFields.WithDetail("account_id"))
		return
	}
	if _, _, err := identity.ParseAccountID(req.AccountID); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	h.respond(w, r, h.m.SwitchAccount(r.Context(), identity.AccountID(strings.TrimSpace(req.AccountID))))
}

func (h *IdentityHandler) actAsUser(w http.ResponseWriter, r *http.Request) {
	if !h.sessionOf(w, r) {
		return
	}
	h.respond(w, r, h.m.ActAsUser(r.Context()))
}

func (h *IdentityHandler) actAsVport(w http.ResponseWriter, r *http.Request) {
	if !h.sessionOf(w, r) {
		return
	}
	h.respond(w, r, h.m.ActAsVport(r.Context(), chi.URLParam(r, "vportID")))
}

func (h *IdentityHandler) addAccount(w http.ResponseWriter, r *http.Request) {
	if !h.sessionOf(w, r) {
		return
	}
	var p identity.Persona
	if !readJSON(w, r, &p) {
		return
	}
	p, err := p.Normalize()
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	if err := h.confirmPersona(r.Context(), p); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	h.respond(w, r, h.m.AddAccount(r.Context(), p))
}

// confirmPersona exige que la persona sea del principal de la sesión: la
// citizen propia, o una que el Directory Service liste para él. El state
// machine confía en lo que recibe; el límite de confianza es este handler.
func (h *IdentityHandler) confirmPersona(ctx context.Context, p identity.Persona) error {
	principal, _ := middlewares.GetPrincipal(ctx)
	if p.Kind == identity.KindCitizen {
		if p.SourceID != principal.ID {
			return errors.ErrForbidden.WithDetail("citizen persona belongs to another principal")
		}
		return nil
	}
	if h.dir == nil {
		return errors.ErrForbidden.WithDetail("vport membership cannot be verified")
	}
	list, err := h.dir.ListPersonas(ctx, principal.ID)
	if err != nil {
		return fmt.Errorf("%w: list personas: %v", identity.ErrTransientResolution, err)
	}
	for _, listed := range list.Vports {
		if listed.SourceID == p.SourceID {
			return nil
		}
	}
	return errors.ErrForbidden.WithDetail("principal is not a member of vport " + p.SourceID)
}

func (h *IdentityHandler) removeAccount(w http.ResponseWriter, r *http.Request) {
	if !h.sessionOf(w, r) {
		return
	}
	raw := chi.URLParam(r, "accountID")
	if _, _, err := identity.ParseAccountID(raw); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	h.respond(w, r, h.m.RemoveAccount(r.Context(), identity.AccountID(raw)))
}

func (h *IdentityHandler) refreshAccounts(w http.ResponseWriter, r *http.Request) {
	if !h.sessionOf(w, r) {
		return
	}
	h.respond(w, r, h.m.RefreshAccounts(r.Context()))
}

type reconcileRequest struct {
	VportID string `json:"vport_id"`
	ActorID string `json:"actor_id"`
}

func (h *IdentityHandler) reconcileActor(w http.ResponseWriter, r *http.Request) {
	if !h.sessionOf(w, r) {
		return
	}
	var req reconcileRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.VportID) == "" {
		errors.WriteError(w, r, errors.ErrMissingFields.WithDetail("vport_id"))
		return
	}
	h.respond(w, r, h.m.ReconcileActor(r.Context(), strings.TrimSpace(req.VportID), strings.TrimSpace(req.ActorID)))
}

type navigationRequest struct {
	VportID string `json:"vport_id"`
}

func (h *IdentityHandler) setNavigation(w http.ResponseWriter, r *http.Request) {
	if !h.sessionOf(w, r) {
		return
	}
	var req navigationRequest
	if !readJSON(w, r, &req) {
		return
	}
	h.nav.Set(strings.TrimSpace(req.VportID))
	w.WriteHeader(http.StatusNoContent)
}

type ownershipResponse struct {
	ActorID string `json:"actor_id"`
	OwnerID string `json:"owner_id"`
}

// ownership responde sólo si el actor pertenece al principal del request.
// Ownership irresoluble o ajena es 403.
func (h *IdentityHandler) ownership(w http.ResponseWriter, r *http.Request) {
	p, ok := middlewares.GetPrincipal(r.Context())
	if !ok {
		errors.WriteError(w, r, errors.ErrTokenMissing)
		return
	}
	if h.own == nil {
		errors.WriteError(w, r, errors.ErrUnresolvable.WithDetail("ownership sources not configured"))
		return
	}
	actorID := chi.URLParam(r, "actorID")
	if err := h.own.Authorize(r.Context(), actorID, p.ID); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ownershipResponse{ActorID: actorID, OwnerID: p.ID})
}
