package esign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyAcceptsKnownEncodings(t *testing.T) {
	v := NewVerifier("shared-key")
	body := []byte(`{"envelopeId":"env-1","action":"signed"}`)
	hexSig := v.Sign(body)

	mac := hmac.New(sha256.New, []byte("shared-key"))
	mac.Write(body)
	b64Sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	cases := map[string]string{
		"hex":          hexSig,
		"hex prefixed": "sha256=" + hexSig,
		"base64":       b64Sig,
		"whitespace":   "  " + hexSig + "  ",
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			matched, ok := v.Verify(body, []string{sig})
			require.True(t, ok)
			require.Equal(t, sig, matched)
		})
	}
}

func TestVerifyTriesEveryHeaderSlot(t *testing.T) {
	v := NewVerifier("shared-key")
	body := []byte(`{"envelopeId":"env-1"}`)
	sig := v.Sign(body)

	matched, ok := v.Verify(body, []string{"", sig})
	require.True(t, ok)
	require.Equal(t, sig, matched)

	matched, ok = v.Verify(body, []string{sig, "garbage"})
	require.True(t, ok)
	require.Equal(t, sig, matched)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	v := NewVerifier("shared-key")
	body := []byte(`{"envelopeId":"env-1","action":"signed"}`)
	sig := v.Sign(body)

	tampered := []byte(`{"envelopeId":"env-2","action":"signed"}`)
	_, ok := v.Verify(tampered, []string{sig})
	require.False(t, ok)
}

func TestVerifyRejectsCrossPayloadReuse(t *testing.T) {
	v := NewVerifier("shared-key")
	sigForOther := v.Sign([]byte(`{"envelopeId":"env-other","action":"voided"}`))

	_, ok := v.Verify([]byte(`{"envelopeId":"env-1","action":"signed"}`), []string{sigForOther})
	require.False(t, ok)
}

func TestVerifyRejectsWrongKeyAndEmptyInput(t *testing.T) {
	body := []byte(`{"envelopeId":"env-1"}`)
	sig := NewVerifier("other-key").Sign(body)

	_, ok := NewVerifier("shared-key").Verify(body, []string{sig})
	require.False(t, ok)

	_, ok = NewVerifier("shared-key").Verify(body, []string{"", "   "})
	require.False(t, ok)

	_, ok = NewVerifier("").Verify(body, []string{sig})
	require.False(t, ok, "an unset key verifies nothing")
}
