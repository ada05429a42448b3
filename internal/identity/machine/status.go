package machine

import (
	"github.com/dropDatabas3/persona/internal/identity"
)

// Phase es la fase externa del state machine. "Resolving" es interno y se
// refleja sólo en Status.Loading.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseHydrating     Phase = "hydrating"
	PhaseReady         Phase = "ready"
)

// Status es la vista de lectura que consumen UI y features.
type Status struct {
	Phase           Phase                    `json:"phase"`
	PrincipalID     string                   `json:"principal_id,omitempty"`
	Loading         bool                     `json:"loading"`
	Err             error                    `json:"-"`
	Error           string                   `json:"error,omitempty"`
	Accounts        []identity.Persona       `json:"accounts"`
	ActiveAccountID identity.AccountID       `json:"active_account_id,omitempty"`
	Identity        *identity.ActiveIdentity `json:"identity"`
	Epoch           uint64                   `json:"epoch"`
}
