package identity

import (
	"fmt"
	"strings"
)

// Kind es el tipo de persona. Es un conjunto cerrado: todo switch sobre Kind
// debe manejar ambos casos y devolver ErrUnknownKind en el default.
type Kind string

const (
	KindCitizen Kind = "citizen"
	KindVport   Kind = "vport"
)

// Valid indica si k es uno de los tipos conocidos.
func (k Kind) Valid() bool {
	switch k {
	case KindCitizen, KindVport:
		return true
	default:
		return false
	}
}

// IdentityType es el tipo expuesto en ActiveIdentity.
type IdentityType string

const (
	TypeUser  IdentityType = "user"
	TypeVport IdentityType = "vport"
)

// AccountID es la clave estable de una persona: "kind:sourceId".
type AccountID string

// NewAccountID arma el account id de una persona.
func NewAccountID(kind Kind, sourceID string) AccountID {
	return AccountID(string(kind) + ":" + sourceID)
}

// ParseAccountID separa un account id en kind y source id.
func ParseAccountID(s string) (Kind, string, error) {
	kind, src, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || src == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAccountID, s)
	}
	k := Kind(kind)
	if !k.Valid() {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return k, src, nil
}

func (a AccountID) String() string { return string(a) }

// Kind devuelve el tipo codificado en el account id ("" si es inválido).
func (a AccountID) Kind() Kind {
	k, _, err := ParseAccountID(string(a))
	if err != nil {
		return ""
	}
	return k
}

// Principal es la entidad autenticada de la sesión.
type Principal struct {
	ID string `json:"id"`
}

// Persona es una identidad controlable por un principal.
type Persona struct {
	AccountID     AccountID `json:"account_id"`
	Kind          Kind      `json:"kind"`
	SourceID      string    `json:"source_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	CachedActorID string    `json:"cached_actor_id,omitempty"`
}

// NewPersona construye una persona con su account id derivado.
func NewPersona(kind Kind, sourceID, displayName, avatarURL string) Persona {
	return Persona{
		AccountID:   NewAccountID(kind, sourceID),
		Kind:        kind,
		SourceID:    sourceID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
	}
}

// Normalize completa el AccountID si falta y valida el kind.
func (p Persona) Normalize() (Persona, error) {
	if !p.Kind.Valid() {
		return p, fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
	if strings.TrimSpace(p.SourceID) == "" {
		return p, fmt.Errorf("%w: empty source id", ErrInvalidAccountID)
	}
	want := NewAccountID(p.Kind, p.SourceID)
	if p.AccountID == "" {
		p.AccountID = want
	}
	if p.AccountID != want {
		return p, fmt.Errorf("%w: %q does not match %q", ErrInvalidAccountID, p.AccountID, want)
	}
	return p, nil
}

// PersonaList es lo que devuelve el Directory Service para un principal.
type PersonaList struct {
	Citizen *Persona
	Vports  []Persona
}

// All aplana la lista: citizen primero, luego vports en el orden recibido.
func (l PersonaList) All() []Persona {
	out := make([]Persona, 0, len(l.Vports)+1)
	if l.Citizen != nil {
		out = append(out, *l.Citizen)
	}
	out = append(out, l.Vports...)
	return out
}

// ActiveIdentity es el snapshot observable de la identidad activa.
// Un *ActiveIdentity nil significa "sin identidad".
type ActiveIdentity struct {
	Type    IdentityType `json:"type"`
	UserID  string       `json:"user_id"`
	OwnerID string       `json:"owner_id,omitempty"`
	VportID string       `json:"vport_id,omitempty"`
	ActorID string       `json:"actor_id,omitempty"`
}

// Equal compara dos snapshots campo a campo. Dos nil son iguales.
func (a *ActiveIdentity) Equal(b *ActiveIdentity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Clone devuelve una copia independiente.
func (a *ActiveIdentity) Clone() *ActiveIdentity {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// IdentityFor deriva la ActiveIdentity de una persona activa del principal.
func IdentityFor(principalID string, p Persona, actorID string) (*ActiveIdentity, error) {
	switch p.Kind {
	case KindCitizen:
		return &ActiveIdentity{
			Type:    TypeUser,
			UserID:  principalID,
			ActorID: actorID,
		}, nil
	case KindVport:
		return &ActiveIdentity{
			Type:    TypeVport,
			UserID:  principalID,
			OwnerID: principalID,
			VportID: p.SourceID,
			ActorID: actorID,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
}

// ActorRecord es lo que el backend sabe de un actor: su tipo y la referencia
// embebida a su dueño (principal para citizen, vport para vport).
type ActorRecord struct {
	ActorID     string
	Kind        Kind
	PrincipalID string
	VportID     string
}
