package middlewares

import (
	"net/http"
	"strings"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/persona/internal/http/errors"
	"github.com/dropDatabas3/persona/internal/identity"
	"github.com/dropDatabas3/persona/internal/observability/logger"
)

// AuthConfig configura cómo se obtiene el principal de un request.
type AuthConfig struct {
	// Secret firma HS256 de los access tokens. Vacío deshabilita Bearer.
	Secret []byte
	// Issuer esperado en "iss" (vacío = no se valida).
	Issuer string
	// AllowHeaderPrincipal acepta X-User-ID (UUID) sin token. Sólo dev.
	AllowHeaderPrincipal bool
}

// ParseToken valida un access token HS256 y devuelve el principal ("sub").
func ParseToken(cfg AuthConfig, raw string) (identity.Principal, error) {
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(cfg.Issuer))
	}
	tk, err := jwtv5.Parse(raw, func(*jwtv5.Token) (any, error) { return cfg.Secret, nil }, opts...)
	if err != nil {
		return identity.Principal{}, err
	}
	sub, err := tk.Claims.GetSubject()
	if err != nil {
		return identity.Principal{}, err
	}
	if strings.TrimSpace(sub) == "" {
		return identity.Principal{}, jwtv5.ErrTokenRequiredClaimMissing
	}
	return identity.Principal{ID: sub}, nil
}

// WithAuth exige un principal: Authorization: Bearer <JWT> o, en dev,
// X-User-ID. Responde 401 si no hay ninguno válido.
func WithAuth(cfg AuthConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal identity.Principal

			ah := strings.TrimSpace(r.Header.Get("Authorization"))
			switch {
			case ah != "" && strings.HasPrefix(strings.ToLower(ah), "bearer "):
				if len(cfg.Secret) == 0 {
					errors.WriteError(w, r, errors.ErrTokenInvalid.WithDetail("bearer tokens not enabled"))
					return
				}
				p, err := ParseToken(cfg, strings.TrimSpace(ah[len("Bearer "):]))
				if err != nil {
					w.Header().Set("WWW-Authenticate", `Bearer realm="persona", error="invalid_token"`)
					errors.WriteError(w, r, errors.ErrTokenInvalid.WithDetail(err.Error()))
					return
				}
				principal = p

			case cfg.AllowHeaderPrincipal && r.Header.Get("X-User-ID") != "":
				id := strings.TrimSpace(r.Header.Get("X-User-ID"))
				if _, err := uuid.Parse(id); err != nil {
					errors.WriteError(w, r, errors.ErrTokenInvalid.WithDetail("X-User-ID must be a UUID"))
					return
				}
				principal = identity.Principal{ID: id}

			default:
				w.Header().Set("WWW-Authenticate", `Bearer realm="persona"`)
				errors.WriteError(w, r, errors.ErrTokenMissing)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			ctx = logger.ToContext(ctx, logger.FromWithFields(ctx, logger.PrincipalID(principal.ID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
