package cipher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBase64RoundTrip(t *testing.T) {
	c := Base64{}
	for _, s := range []string{"", "hi", "héllo 👋", "12345"} {
		token := c.Encode(s)
		assert.Equal(t, s, c.Decode(token))
	}
	assert.Equal(t, "aGk=", c.Encode("hi"))
}

func TestBase64DecodeInvalidTokenIsIdentity(t *testing.T) {
	assert.Equal(t, "not base64!", Base64{}.Decode("not base64!"))
}
