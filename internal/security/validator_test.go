package security

import (
	"crypto/sha1"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwig/marlin/core/domain"
	"github.com/edwig/marlin/core/ports"
	"github.com/edwig/marlin/internal/crypto"
)

func envelope(securityHeader, body string) []byte {
	header := ""
	if securityHeader != "" {
		header = `<wsse:Security xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">` + securityHeader + `</wsse:Security>`
	}
	return []byte(`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope">` +
		`<soap:Header>` + header + `</soap:Header>` +
		`<soap:Body>` + body + `</soap:Body></soap:Envelope>`)
}

func TestValidator_PlainLevelSkipsEncryptionCheck(t *testing.T) {
	v := NewValidator(ports.NewEnvelopeCodec(), nil)
	s := &domain.Site{EncryptionLevel: domain.EncryptionPlain}
	req := &domain.Request{Body: envelope("", "<ns:DoWork/>")}

	assert.NoError(t, v.Validate(s, req))
}

func TestValidator_SigningSucceedsOnMatchingDigest(t *testing.T) {
	v := NewValidator(ports.NewEnvelopeCodec(), nil)
	s := &domain.Site{EncryptionLevel: domain.EncryptionSigning, EncryptionPassword: "sigpass"}
	body := "<ns:DoWork/>"

	digest, err := signDigest("sha1", []byte(body), "sigpass")
	require.NoError(t, err)

	sigHeader := `<ds:Signature xmlns:ds="http://www.w3.org/2000/09/xmldsig#">` +
		`<ds:SignedInfo><ds:Reference URI="#body">` +
		`<ds:DigestMethod Algorithm="http://www.w3.org/2000/09/xmldsig#sha1"/>` +
		`</ds:Reference></ds:SignedInfo>` +
		`<ds:SignatureValue>` + digest + `</ds:SignatureValue></ds:Signature>`

	req := &domain.Request{Body: envelope(sigHeader, body)}
	assert.NoError(t, v.Validate(s, req))
}

func TestValidator_SigningFailsOnMismatch(t *testing.T) {
	v := NewValidator(ports.NewEnvelopeCodec(), nil)
	s := &domain.Site{EncryptionLevel: domain.EncryptionSigning, EncryptionPassword: "sigpass"}

	sigHeader := `<ds:Signature xmlns:ds="http://www.w3.org/2000/09/xmldsig#">` +
		`<ds:SignedInfo><ds:Reference URI="#body">` +
		`<ds:DigestMethod Algorithm="http://www.w3.org/2000/09/xmldsig#sha1"/>` +
		`</ds:Reference></ds:SignedInfo>` +
		`<ds:SignatureValue>bm90dGhlcmlnaHRkaWdlc3Q=</ds:SignatureValue></ds:Signature>`

	req := &domain.Request{Body: envelope(sigHeader, "<ns:DoWork/>")}
	assert.ErrorIs(t, v.Validate(s, req), ErrNoSigning)
}

func TestValidator_SigningFailsWithoutSecurityHeader(t *testing.T) {
	v := NewValidator(ports.NewEnvelopeCodec(), nil)
	s := &domain.Site{EncryptionLevel: domain.EncryptionSigning, EncryptionPassword: "sigpass"}
	req := &domain.Request{Body: envelope("", "<ns:DoWork/>")}

	assert.ErrorIs(t, v.Validate(s, req), ErrNoSigning)
}

func TestValidator_BodyEncryptionRoundTrips(t *testing.T) {
	v := NewValidator(ports.NewEnvelopeCodec(), nil)
	s := &domain.Site{EncryptionLevel: domain.EncryptionBody, EncryptionPassword: "bodypass", Prefix: "https://host:80/site/"}

	key := crypto.DeriveSiteKey(s.EncryptionPassword, s.Prefix)
	enc, err := crypto.NewEncryptor(string(key))
	require.NoError(t, err)

	plaintext := "<ns:DoWork/>"
	ciphertext, err := enc.EncryptString(plaintext)
	require.NoError(t, err)
	b64 := base64.StdEncoding.EncodeToString(ciphertext)

	req := &domain.Request{Body: envelope("", b64)}
	require.NoError(t, v.Validate(s, req))
	assert.Equal(t, plaintext, string(req.Body))
}

func TestValidator_BodyEncryptionFailsOnBadCiphertext(t *testing.T) {
	v := NewValidator(ports.NewEnvelopeCodec(), nil)
	s := &domain.Site{EncryptionLevel: domain.EncryptionBody, EncryptionPassword: "bodypass"}
	req := &domain.Request{Body: envelope("", "bm90LXZhbGlkLWNpcGhlcnRleHQ=")}

	assert.ErrorIs(t, v.Validate(s, req), ErrNoEncryption)
}

func TestValidator_UsernameTokenPlaintextSuccess(t *testing.T) {
	lookup := func(s *domain.Site, username string) (string, bool) {
		if username == "alice" {
			return "hunter2", true
		}
		return "", false
	}
	v := NewValidator(ports.NewEnvelopeCodec(), lookup)
	s := &domain.Site{EncryptionLevel: domain.EncryptionPlain}

	header := `<wsse:UsernameToken>` +
		`<Username>alice</Username>` +
		`<Password Type="PasswordText">hunter2</Password>` +
		`</wsse:UsernameToken>`
	req := &domain.Request{Body: envelope(header, "<ns:DoWork/>")}

	require.NoError(t, v.Validate(s, req))
	assert.Equal(t, "alice", req.SID)
}

func TestValidator_UsernameTokenDigestSuccess(t *testing.T) {
	lookup := func(s *domain.Site, username string) (string, bool) { return "hunter2", true }
	v := NewValidator(ports.NewEnvelopeCodec(), lookup)
	s := &domain.Site{EncryptionLevel: domain.EncryptionPlain}

	nonce := base64.StdEncoding.EncodeToString([]byte("nonce-bytes"))
	created := time.Now().UTC().Format(time.RFC3339)
	material := append(append([]byte("nonce-bytes"), []byte(created)...), []byte("hunter2")...)
	sum := sha1.Sum(material)
	digest := base64.StdEncoding.EncodeToString(sum[:])

	header := `<wsse:UsernameToken>` +
		`<Username>alice</Username>` +
		`<Password Type="...#PasswordDigest">` + digest + `</Password>` +
		`<Nonce>` + nonce + `</Nonce>` +
		`<Created>` + created + `</Created>` +
		`</wsse:UsernameToken>`
	req := &domain.Request{Body: envelope(header, "<ns:DoWork/>")}

	require.NoError(t, v.Validate(s, req))
	assert.Equal(t, "alice", req.SID)
}

func TestValidator_UsernameTokenWrongPasswordFails(t *testing.T) {
	lookup := func(s *domain.Site, username string) (string, bool) { return "hunter2", true }
	v := NewValidator(ports.NewEnvelopeCodec(), lookup)
	s := &domain.Site{EncryptionLevel: domain.EncryptionPlain}

	header := `<wsse:UsernameToken><Username>alice</Username><Password Type="PasswordText">wrong</Password></wsse:UsernameToken>`
	req := &domain.Request{Body: envelope(header, "<ns:DoWork/>")}

	assert.ErrorIs(t, v.Validate(s, req), ErrBadUsernameToken)
}

func TestValidator_UsernameTokenStaleCreatedFails(t *testing.T) {
	lookup := func(s *domain.Site, username string) (string, bool) { return "hunter2", true }
	v := NewValidator(ports.NewEnvelopeCodec(), lookup)
	s := &domain.Site{EncryptionLevel: domain.EncryptionPlain}

	stale := time.Now().Add(-1 * time.Hour).UTC().Format(time.RFC3339)
	header := `<wsse:UsernameToken><Username>alice</Username>` +
		`<Password Type="PasswordText">hunter2</Password>` +
		`<Created>` + stale + `</Created></wsse:UsernameToken>`
	req := &domain.Request{Body: envelope(header, "<ns:DoWork/>")}

	assert.ErrorIs(t, v.Validate(s, req), ErrStaleUsernameToken)
}

func TestValidator_NilLookupSkipsUsernameToken(t *testing.T) {
	v := NewValidator(ports.NewEnvelopeCodec(), nil)
	s := &domain.Site{EncryptionLevel: domain.EncryptionPlain}

	header := `<wsse:UsernameToken><Username>alice</Username><Password Type="PasswordText">hunter2</Password></wsse:UsernameToken>`
	req := &domain.Request{Body: envelope(header, "<ns:DoWork/>")}

	require.NoError(t, v.Validate(s, req))
	assert.Empty(t, req.SID)
}

func TestClampFreshness(t *testing.T) {
	assert.Equal(t, defaultFreshness, clampFreshness(0))
	assert.Equal(t, minFreshness, clampFreshness(time.Second))
	assert.Equal(t, maxFreshness, clampFreshness(24*time.Hour))
	assert.Equal(t, 10*time.Minute, clampFreshness(10*time.Minute))
}
