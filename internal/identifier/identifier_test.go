package identifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFromQueryParam(t *testing.T) {
	id := Extract("https://my.example.com/verify/?verificationId=6a00000000000000000000aa&step=collect")
	assert.Equal(t, "6a00000000000000000000aa", id)
}

func TestExtractFromPathSegment(t *testing.T) {
	id := Extract("https://my.example.com/verify/6900000000000000000000bb")
	assert.Equal(t, "6900000000000000000000bb", id)
}

func TestExtractBareHex(t *testing.T) {
	id := Extract("6a00000000000000000000aa")
	assert.Equal(t, "6a00000000000000000000aa", id)
}

func TestExtractNoMatch(t *testing.T) {
	assert.Empty(t, Extract(""))
	assert.Empty(t, Extract("https://my.example.com/help"))
	assert.Empty(t, Extract("not a link at all"))
	// only the verificationId parameter name is recognized
	assert.Empty(t, Extract("https://my.example.com/verify?id=6a00000000000000000000aa"))
}

func TestExtractPrefersQueryParam(t *testing.T) {
	id := Extract("https://my.example.com/6900000000000000000000bb?verificationId=6a00000000000000000000aa")
	assert.Equal(t, "6a00000000000000000000aa", id)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("6a00000000000000000000aa"))
	assert.NoError(t, Validate("6900000000000000000000bb"))
	assert.NoError(t, Validate("6A00000000000000000000AA"))
}

func TestValidateWrongLength(t *testing.T) {
	assert.ErrorIs(t, Validate(""), ErrWrongLength)
	assert.ErrorIs(t, Validate("6a0000"), ErrWrongLength)
	assert.ErrorIs(t, Validate("6a00000000000000000000aa00"), ErrWrongLength)
}

func TestValidateNotHex(t *testing.T) {
	assert.ErrorIs(t, Validate("6a000000000000000000zzzz"), ErrNotHex)
}

func TestValidateBadPrefix(t *testing.T) {
	err := Validate("zz" + strings.Repeat("0", 22))
	assert.ErrorIs(t, err, ErrBadPrefix)
	assert.NotErrorIs(t, err, ErrWrongLength)
	assert.NotErrorIs(t, err, ErrNotHex)

	assert.ErrorIs(t, Validate("ff"+strings.Repeat("0", 22)), ErrBadPrefix)
}
