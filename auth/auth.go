// Package auth implements key management, request signing and token state
// for the Ekiden API.
package auth

import (
	"encoding/json"
	"sync"

	"github.com/juju/errors"
)

// ErrNotAuthorized means an operation needing an API token was attempted
// before a successful authorization.
var ErrNotAuthorized = errors.New("not authorized, call Authorize first")

// ErrNoKeyPair means an operation needing a private key was attempted on an
// Auth created without one.
var ErrNoKeyPair = errors.New("no key pair available for signing")

// AuthorizeParams is the body of the authorization request: a signature of
// the fixed authorization message plus the signer's public key.
type AuthorizeParams struct {
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

// AuthorizeResponse carries the bearer token issued by the venue.
type AuthorizeResponse struct {
	Token string `json:"token"`
}

// Auth holds the key pair and the API token of one account. All methods are
// safe for concurrent use.
type Auth struct {
	mtx     sync.Mutex
	keyPair *KeyPair
	token   string
}

// NewAuth creates an Auth without a key pair or token.
func NewAuth() *Auth {
	return &Auth{}
}

// WithPrivateKey sets the key pair from a private key hex string.
func (a *Auth) WithPrivateKey(privateKeyHex string) (*Auth, error) {
	kp, err := NewKeyPairFromHex(privateKeyHex)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return a.WithKeyPair(kp), nil
}

// WithKeyPair sets the key pair.
func (a *Auth) WithKeyPair(kp *KeyPair) *Auth {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.keyPair = kp
	return a
}

// WithToken sets the API token directly, skipping authorization.
func (a *Auth) WithToken(token string) *Auth {
	a.SetToken(token)
	return a
}

// HasKeyPair reports whether a key pair is set.
func (a *Auth) HasKeyPair() bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.keyPair != nil
}

// PublicKey returns the public key in hex, or "" without a key pair.
func (a *Auth) PublicKey() string {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.keyPair == nil {
		return ""
	}
	return a.keyPair.PublicKey()
}

// Address returns the account address, or "" without a key pair.
func (a *Auth) Address() string {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.keyPair == nil {
		return ""
	}
	return a.keyPair.Address()
}

// Token returns the current API token, or "".
func (a *Auth) Token() string {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.token
}

// SetToken stores the API token.
func (a *Auth) SetToken(token string) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.token = token
}

// ClearToken discards the API token.
func (a *Auth) ClearToken() {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.token = ""
}

// IsAuthenticated reports whether a token is set.
func (a *Auth) IsAuthenticated() bool {
	return a.Token() != ""
}

// BearerToken returns the Authorization header value, or "" without a token.
func (a *Auth) BearerToken() string {
	token := a.Token()
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

// EnsureAuthenticated returns ErrNotAuthorized if no token is set.
func (a *Auth) EnsureAuthenticated() error {
	if !a.IsAuthenticated() {
		return ErrNotAuthorized
	}
	return nil
}

// AuthorizeParams signs the authorization message and returns the request
// params for the authorize endpoint.
func (a *Auth) AuthorizeParams() (AuthorizeParams, error) {
	kp, err := a.ensureKeyPair()
	if err != nil {
		return AuthorizeParams{}, errors.Trace(err)
	}

	sig, err := NormalizeSignature(kp.SignAuthorize())
	if err != nil {
		return AuthorizeParams{}, errors.Trace(err)
	}
	pub, err := NormalizePublicKey(kp.PublicKey())
	if err != nil {
		return AuthorizeParams{}, errors.Trace(err)
	}

	return AuthorizeParams{Signature: sig, PublicKey: pub}, nil
}

// SignMessage signs an arbitrary message with the key pair.
func (a *Auth) SignMessage(message []byte) (string, error) {
	kp, err := a.ensureKeyPair()
	if err != nil {
		return "", errors.Trace(err)
	}
	return NormalizeSignature(kp.Sign(message))
}

// SignJSON marshals v and signs the resulting JSON bytes.
func (a *Auth) SignJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Trace(err)
	}
	return a.SignMessage(data)
}

func (a *Auth) ensureKeyPair() (*KeyPair, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.keyPair == nil {
		return nil, ErrNoKeyPair
	}
	return a.keyPair, nil
}
