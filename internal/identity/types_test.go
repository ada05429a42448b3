package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccountID(t *testing.T) {
	k, src, err := ParseAccountID("vport:42")
	require.NoError(t, err)
	assert.Equal(t, KindVport, k)
	assert.Equal(t, "42", src)

	_, _, err = ParseAccountID("vport:")
	assert.ErrorIs(t, err, ErrInvalidAccountID)

	_, _, err = ParseAccountID("nope")
	assert.ErrorIs(t, err, ErrInvalidAccountID)

	_, _, err = ParseAccountID("org:1")
	assert.ErrorIs(t, err, ErrUnknownKind)

	assert.Equal(t, KindCitizen, AccountID("citizen:u1").Kind())
	assert.Equal(t, Kind(""), AccountID("garbage").Kind())
}

func TestPersonaNormalize(t *testing.T) {
	p, err := Persona{Kind: KindVport, SourceID: "7"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, AccountID("vport:7"), p.AccountID)

	_, err = Persona{Kind: KindVport, SourceID: "7", AccountID: "vport:8"}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidAccountID)

	_, err = Persona{Kind: "org", SourceID: "7"}.Normalize()
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestActiveIdentityEqual(t *testing.T) {
	var a, b *ActiveIdentity
	assert.True(t, a.Equal(b))

	a = &ActiveIdentity{Type: TypeUser, UserID: "u1", ActorID: "a1"}
	assert.False(t, a.Equal(nil))
	assert.False(t, b.Equal(a))

	b = a.Clone()
	assert.True(t, a.Equal(b))
	b.ActorID = "a2"
	assert.False(t, a.Equal(b))
	assert.Equal(t, "a1", a.ActorID)
}

func TestIdentityFor(t *testing.T) {
	citizen := NewPersona(KindCitizen, "u1", "Ana", "")
	id, err := IdentityFor("u1", citizen, "act-1")
	require.NoError(t, err)
	assert.Equal(t, &ActiveIdentity{Type: TypeUser, UserID: "u1", ActorID: "act-1"}, id)

	vp := NewPersona(KindVport, "v9", "Bakery", "")
	id, err = IdentityFor("u1", vp, "")
	require.NoError(t, err)
	assert.Equal(t, &ActiveIdentity{Type: TypeVport, UserID: "u1", OwnerID: "u1", VportID: "v9"}, id)

	_, err = IdentityFor("u1", Persona{Kind: "org"}, "")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestPersonaListAll(t *testing.T) {
	c := NewPersona(KindCitizen, "u1", "", "")
	l := PersonaList{Citizen: &c, Vports: []Persona{NewPersona(KindVport, "v1", "", "")}}
	all := l.All()
	require.Len(t, all, 2)
	assert.Equal(t, AccountID("citizen:u1"), all[0].AccountID)
	assert.Equal(t, AccountID("vport:v1"), all[1].AccountID)

	assert.Empty(t, PersonaList{}.All())
}
