package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskDSN(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"postgres://app:s3cret@db:5432/persona?sslmode=disable", "postgres://app:xxxxx@db:5432/persona?sslmode=disable"},
		{"postgres://app@db/persona", "postgres://app@db/persona"},
		{"host=db user=app password=s3cret dbname=persona", "host=db user=app password=xxxxx dbname=persona"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MaskDSN(c.in), c.in)
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "***", MaskSecret("abcd"))
	assert.Equal(t, "a…z", MaskSecret("abcdefz"))
}
