package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuth() *HMACAuth {
	return &HMACAuth{
		Key:        "api-key-1234",
		Secret:     base64.StdEncoding.EncodeToString([]byte("super-secret")),
		Passphrase: "hunter2",
	}
}

func TestL2HeadersAt_Deterministic(t *testing.T) {
	auth := testAuth()

	h1 := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000000)
	h2 := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000000)

	assert.Equal(t, h1, h2)
	assert.Equal(t, "0xabc", h1["POLY_ADDRESS"])
	assert.Equal(t, "api-key-1234", h1["POLY_API_KEY"])
	assert.Equal(t, "1700000000", h1["POLY_TIMESTAMP"])
	assert.Equal(t, "hunter2", h1["POLY_PASSPHRASE"])
	require.NotEmpty(t, h1["POLY_SIGNATURE"])

	// Valid base64, as the CLOB expects.
	_, err := base64.StdEncoding.DecodeString(h1["POLY_SIGNATURE"])
	assert.NoError(t, err)
}

func TestL2HeadersAt_SignatureCoversRequest(t *testing.T) {
	auth := testAuth()
	base := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000000)

	differentBody := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":2}`, 1700000000)
	assert.NotEqual(t, base["POLY_SIGNATURE"], differentBody["POLY_SIGNATURE"])

	differentPath := auth.L2HeadersAt("0xabc", "POST", "/cancel", `{"x":1}`, 1700000000)
	assert.NotEqual(t, base["POLY_SIGNATURE"], differentPath["POLY_SIGNATURE"])

	differentTime := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1700000001)
	assert.NotEqual(t, base["POLY_SIGNATURE"], differentTime["POLY_SIGNATURE"])
}

func TestHMACAuth_StringRedactsSecrets(t *testing.T) {
	auth := testAuth()
	s := auth.String()

	assert.NotContains(t, s, auth.Secret)
	assert.Contains(t, s, "****")
}
