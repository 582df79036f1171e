// Package security implements the Security Validator (C9): the
// Signing / Body / Message encryption levels and the optional
// WS-Security UsernameToken profile.
package security

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/edwig/marlin/core/domain"
	"github.com/edwig/marlin/core/ports"
	"github.com/edwig/marlin/internal/crypto"
)

var (
	ErrNoSigning          = errors.New("security: Client/Configuration/NoSigning")
	ErrNoEncryption       = errors.New("security: Client/Configuration/NoEncryption")
	ErrBadUsernameToken   = errors.New("security: Client/Configuration/BadUsernameToken")
	ErrStaleUsernameToken = errors.New("security: Client/Configuration/StaleUsernameToken")
)

const (
	defaultFreshness = 5 * time.Minute
	minFreshness     = time.Minute
	maxFreshness     = time.Hour
)

// PasswordLookup resolves the expected password for username on site.
// A nil PasswordLookup disables UsernameToken verification entirely,
// leaving principal resolution to a later stage of the pipeline.
type PasswordLookup func(site *domain.Site, username string) (password string, ok bool)

// Validator is the site.SecurityValidator implementation.
type Validator struct {
	codec  ports.SOAPCodec
	lookup PasswordLookup
}

// NewValidator builds a Validator. A nil codec defaults to
// ports.NewEnvelopeCodec().
func NewValidator(codec ports.SOAPCodec, lookup PasswordLookup) *Validator {
	if codec == nil {
		codec = ports.NewEnvelopeCodec()
	}
	return &Validator{codec: codec, lookup: lookup}
}

// Validate runs the encryption-level check for s (if any) and, when a
// WS-Security header is present, the UsernameToken profile. On success
// it may set req.SID to the UsernameToken's authenticated principal.
func (v *Validator) Validate(s *domain.Site, req *domain.Request) error {
	env, ok, err := v.codec.Decode(req.Body)
	if err != nil {
		return err
	}
	if !ok {
		if s.EncryptionLevel != domain.EncryptionPlain {
			return ErrNoSigning
		}
		return nil
	}

	switch s.EncryptionLevel {
	case domain.EncryptionSigning:
		if err := v.validateSigning(s, env); err != nil {
			return err
		}
	case domain.EncryptionBody:
		// Only the Body element was ciphertext; the header (and any
		// UsernameToken in it) survives untouched, so env is still valid
		// for the UsernameToken check below.
		if err := v.validateEncrypted(s, req, env, false); err != nil {
			return err
		}
	case domain.EncryptionMessage:
		// The whole envelope was ciphertext; re-decode the plaintext to
		// pick up whatever header it carries.
		if err := v.validateEncrypted(s, req, env, true); err != nil {
			return err
		}
		if newEnv, ok, decErr := v.codec.Decode(req.Body); decErr == nil && ok {
			env = newEnv
		}
	}

	if len(env.SecurityHeader) == 0 {
		return nil
	}
	principal, err := v.validateUsernameToken(s, env.SecurityHeader)
	if err != nil {
		return err
	}
	if principal != "" {
		req.SID = principal
	}
	return nil
}

// validateSigning checks SignatureValue against a digest of the
// referenced element, computed with the site's signing password.
// Reference.URI resolution to an arbitrary element id isn't tracked by
// the minimal envelope codec, so per the contract's explicit fallback
// the Body element is always the digest target.
func (v *Validator) validateSigning(s *domain.Site, env ports.Envelope) error {
	if len(env.SecurityHeader) == 0 {
		return ErrNoSigning
	}
	var sig struct {
		SignatureValue string `xml:"SignatureValue"`
		SignedInfo     struct {
			Reference struct {
				URI          string `xml:"URI,attr"`
				DigestMethod struct {
					Algorithm string `xml:"Algorithm,attr"`
				} `xml:"DigestMethod"`
			} `xml:"Reference"`
		} `xml:"SignedInfo"`
	}
	if err := xml.Unmarshal(env.SecurityHeader, &sig); err != nil || sig.SignatureValue == "" {
		return ErrNoSigning
	}

	algo := "sha1"
	if idx := strings.LastIndex(sig.SignedInfo.Reference.DigestMethod.Algorithm, "#"); idx >= 0 {
		algo = sig.SignedInfo.Reference.DigestMethod.Algorithm[idx+1:]
	}

	digest, err := signDigest(algo, env.Body, s.EncryptionPassword)
	if err != nil {
		return ErrNoSigning
	}
	if !constantTimeStringsEqual(digest, sig.SignatureValue) {
		return ErrNoSigning
	}
	return nil
}

func signDigest(algo string, body []byte, password string) (string, error) {
	material := append(append([]byte(nil), body...), []byte(password)...)
	var sum []byte
	switch strings.ToLower(algo) {
	case "sha1", "":
		h := sha1.Sum(material)
		sum = h[:]
	case "sha256":
		h := sha256.Sum256(material)
		sum = h[:]
	default:
		return "", fmt.Errorf("security: unsupported digest algorithm %q", algo)
	}
	return base64.StdEncoding.EncodeToString(sum), nil
}

// validateEncrypted decrypts req.Body (whole envelope) or env.Body
// (Body-only) with the site's derived key, replacing req.Body with the
// plaintext. For a whole-envelope decrypt the plaintext must re-parse
// as a SOAP envelope or be blank; for a Body-only decrypt — where the
// envelope isn't reassembled, per the codec's minimal-splitter design —
// the plaintext must be well-formed XML or blank.
func (v *Validator) validateEncrypted(s *domain.Site, req *domain.Request, env ports.Envelope, whole bool) error {
	source := env.Body
	if whole {
		source = req.Body
	}
	ciphertext, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(source)))
	if err != nil {
		return ErrNoEncryption
	}

	key := crypto.DeriveSiteKey(s.EncryptionPassword, s.Prefix)
	enc, err := crypto.NewEncryptor(string(key))
	if err != nil {
		return ErrNoEncryption
	}
	plaintext, err := enc.Decrypt(ciphertext)
	if err != nil {
		return ErrNoEncryption
	}
	req.Body = plaintext

	if len(bytes.TrimSpace(plaintext)) == 0 {
		return nil
	}
	if whole {
		if _, ok, decErr := v.codec.Decode(plaintext); decErr != nil || !ok {
			return ErrNoEncryption
		}
		return nil
	}
	if !isWellFormedXML(plaintext) {
		return ErrNoEncryption
	}
	return nil
}

func isWellFormedXML(data []byte) bool {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		if _, err := dec.Token(); err != nil {
			return err == io.EOF
		}
	}
}

type usernameToken struct {
	Username string `xml:"Username"`
	Password struct {
		Type  string `xml:"Type,attr"`
		Value string `xml:",chardata"`
	} `xml:"Password"`
	Nonce struct {
		Value string `xml:",chardata"`
	} `xml:"Nonce"`
	Created string `xml:"Created"`
}

// validateUsernameToken verifies (username, password) per the
// UsernameToken profile and returns the authenticated principal. A
// header with no UsernameToken, or a nil lookup, is not an error —
// it returns ("", nil) so callers can fall through to other
// authentication schemes.
func (v *Validator) validateUsernameToken(s *domain.Site, raw []byte) (string, error) {
	if v.lookup == nil {
		return "", nil
	}
	var tok usernameToken
	if err := xml.Unmarshal(raw, &tok); err != nil || tok.Username == "" {
		return "", nil
	}

	expected, ok := v.lookup(s, tok.Username)
	if !ok {
		return "", ErrBadUsernameToken
	}

	if tok.Created != "" {
		created, err := time.Parse(time.RFC3339, tok.Created)
		if err != nil {
			return "", ErrBadUsernameToken
		}
		freshness := clampFreshness(s.Auth.UsernameTokenFreshness)
		if age := time.Since(created); age > freshness || age < -freshness {
			return "", ErrStaleUsernameToken
		}
	}

	if strings.Contains(tok.Password.Type, "PasswordDigest") {
		nonce, err := base64.StdEncoding.DecodeString(tok.Nonce.Value)
		if err != nil {
			return "", ErrBadUsernameToken
		}
		material := append(append(append([]byte(nil), nonce...), []byte(tok.Created)...), []byte(expected)...)
		sum := sha1.Sum(material)
		want := base64.StdEncoding.EncodeToString(sum[:])
		if !constantTimeStringsEqual(tok.Password.Value, want) {
			return "", ErrBadUsernameToken
		}
	} else if !constantTimeStringsEqual(tok.Password.Value, expected) {
		return "", ErrBadUsernameToken
	}

	return tok.Username, nil
}

func clampFreshness(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultFreshness
	}
	if d < minFreshness {
		return minFreshness
	}
	if d > maxFreshness {
		return maxFreshness
	}
	return d
}

func constantTimeStringsEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
