package identity

import "errors"

// Errores del core de identidad.
var (
	// ErrTransientResolution indica que falló una llamada al Directory Service o al Actor Registry.
	// Se recupera localmente: la identidad anterior se conserva.
	ErrTransientResolution = errors.New("identity: transient resolution failure")

	// ErrUnresolvableOwnership indica que ninguna de las tres fuentes de ownership
	// devolvió un dueño. Los llamadores deben tratarlo como "no autorizado".
	ErrUnresolvableOwnership = errors.New("identity: unresolvable ownership")

	// ErrStaleResolution marca una resolución descartada porque el epoch avanzó.
	// Nunca llega al usuario; sólo se loguea.
	ErrStaleResolution = errors.New("identity: stale resolution discarded")

	// ErrInvalidSwitchTarget indica un switch a una persona que no está en la lista.
	ErrInvalidSwitchTarget = errors.New("identity: invalid switch target")

	// ErrAccountNotFound indica que la persona no existe en la lista actual.
	ErrAccountNotFound = errors.New("identity: account not found")

	// ErrInvalidAccountID indica un account id mal formado.
	ErrInvalidAccountID = errors.New("identity: invalid account id")

	// ErrUnknownKind indica un kind fuera de {citizen, vport}.
	ErrUnknownKind = errors.New("identity: unknown persona kind")

	// ErrForbidden es la denegación dura derivada de un chequeo de ownership.
	ErrForbidden = errors.New("identity: forbidden")

	// ErrNoPrincipal indica una operación que requiere sesión sin principal hidratado.
	ErrNoPrincipal = errors.New("identity: no principal")
)

// IsTransient helper para verificar fallos de red/backend.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientResolution)
}

// IsUnresolvableOwnership helper para verificar ownership irresoluble.
func IsUnresolvableOwnership(err error) bool {
	return errors.Is(err, ErrUnresolvableOwnership)
}

// IsInvalidSwitchTarget helper para verificar un switch inválido.
func IsInvalidSwitchTarget(err error) bool {
	return errors.Is(err, ErrInvalidSwitchTarget)
}

// IsForbidden helper para verificar una denegación de autorización.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
