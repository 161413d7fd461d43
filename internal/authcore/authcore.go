// Package authcore implements the DID authentication pipeline: sign-in
// challenge issuance and did_auth verification, both ending in a
// short-lived bearer JWT.
package authcore

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/chenyukaola/feeds-service/internal/didbackend"
	"github.com/chenyukaola/feeds-service/internal/diddoc"
	"github.com/chenyukaola/feeds-service/internal/errs"
	"github.com/chenyukaola/feeds-service/internal/model"
)

// Config holds authcore's tunable constants.
type Config struct {
	ServerDID    string
	ChallengeTTL time.Duration
	AccessTTL    time.Duration
	NonceBytes   int
}

// Core owns the nonce table and issues/verifies JWTs on behalf of the
// server DID. Single-threaded by design — no internal locking.
type Core struct {
	cfg     Config
	signKey ed25519.PrivateKey
	docs    *diddoc.Cache
	backend didbackend.Backend
	nonces  map[string]model.AuthSecret
	logger  *zap.Logger
}

// New constructs a Core. signKey signs every JWT the server issues.
func New(cfg Config, signKey ed25519.PrivateKey, docs *diddoc.Cache, backend didbackend.Backend, logger *zap.Logger) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Core{
		cfg:     cfg,
		signKey: signKey,
		docs:    docs,
		backend: backend,
		nonces:  make(map[string]model.AuthSecret),
		logger:  logger,
	}
}

// SignIn implements 4.3 sign_in: validates the client's DID document,
// caches it locally, and returns a signed challenge JWT.
func (c *Core) SignIn(docJSON []byte) (string, error) {
	doc, err := c.backend.ParseDocument(docJSON)
	if err != nil {
		return "", fmt.Errorf("authcore: sign_in parse document: %w", errs.ErrBadDidDoc)
	}
	if err := c.backend.ValidateDocument(doc); err != nil {
		return "", fmt.Errorf("authcore: sign_in validate document: %w", errs.ErrDidDocInvalid)
	}
	clientDID := doc.ID
	if clientDID == "" {
		return "", fmt.Errorf("authcore: sign_in empty did: %w", errs.ErrBadDid)
	}
	if err := c.docs.Save(clientDID, doc); err != nil {
		return "", fmt.Errorf("authcore: sign_in save document: %w", errs.ErrSaveDocFailed)
	}

	nonce, err := randomHex(c.cfg.NonceBytes)
	if err != nil {
		return "", fmt.Errorf("authcore: sign_in generate nonce: %w", errs.ErrBadJwtBuilder)
	}
	exp := time.Now().Add(c.cfg.ChallengeTTL)

	claims := jwt.MapClaims{
		"exp":   exp.Unix(),
		"aud":   clientDID,
		"sub":   "DIDAuthChallenge",
		"nonce": nonce,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["version"] = "1.0"
	signed, err := token.SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("authcore: sign_in sign jwt: %w", errs.ErrJwtSignFailed)
	}

	c.nonces[nonce] = model.AuthSecret{DID: clientDID, Expiration: exp}
	c.logger.Info("authcore: issued challenge", zap.String("did", clientDID))
	return signed, nil
}

// presentationClaims is the outer JWT's claim set.
// Presentation is kept as json.RawMessage rather than decoded generically
// so the bytes handed to the DID backend for signature verification are
// exactly the bytes the holder signed — a generic map round-trip would
// re-order object keys and break the detached signature.
type presentationClaims struct {
	jwt.RegisteredClaims
	Presentation json.RawMessage `json:"presentation"`
}

// DidAuth implements 4.3 did_auth: verifies the presented JWT-wrapped
// Verifiable Presentation against the nonce table and issues an access
// token JWT.
func (c *Core) DidAuth(presentationJWT string) (string, error) {
	var claims presentationClaims
	token, err := jwt.ParseWithClaims(presentationJWT, &claims, c.keyfunc, jwt.WithValidMethods([]string{"EdDSA"}))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("authcore: did_auth parse challenge jwt: %w", errs.ErrBadJwtChallenge)
	}

	if len(claims.Presentation) == 0 {
		return "", fmt.Errorf("authcore: did_auth missing presentation claim: %w", errs.ErrGetPresentationFailed)
	}
	vp, err := c.backend.ParsePresentation(claims.Presentation)
	if err != nil {
		return "", fmt.Errorf("authcore: did_auth parse presentation: %w", errs.ErrGetPresentationFailed)
	}

	if vp.Nonce == "" {
		return "", fmt.Errorf("authcore: did_auth empty nonce: %w", errs.ErrPresentationEmptyNonce)
	}
	secret, ok := c.nonces[vp.Nonce]
	if !ok {
		return "", fmt.Errorf("authcore: did_auth unknown nonce: %w", errs.ErrPresentationBadNonce)
	}
	// At-most-one-use: consume the nonce now, regardless of what follows.
	delete(c.nonces, vp.Nonce)

	if vp.Realm == "" {
		return "", fmt.Errorf("authcore: did_auth empty realm: %w", errs.ErrPresentationEmptyRealm)
	}
	if vp.Realm != c.cfg.ServerDID {
		return "", fmt.Errorf("authcore: did_auth wrong realm: %w", errs.ErrPresentationBadRealm)
	}

	holderDoc, err := c.docs.Load(secret.DID)
	if err != nil {
		return "", fmt.Errorf("authcore: did_auth load holder document: %w", errs.ErrInvalidPresentation)
	}
	if err := c.backend.ValidatePresentation(vp, holderDoc); err != nil {
		return "", fmt.Errorf("authcore: did_auth invalid presentation: %w", errs.ErrInvalidPresentation)
	}

	if len(vp.VerifiableCredential) == 0 {
		return "", fmt.Errorf("authcore: did_auth no credentials: %w", errs.ErrVerifiableCredentialBadCount)
	}
	cred := vp.VerifiableCredential[0]

	if cred.Issuer == "" {
		return "", fmt.Errorf("authcore: did_auth credential issuer missing: %w", errs.ErrCredentialIssuerNotExists)
	}
	issuerDoc, err := c.docs.Load(cred.Issuer)
	if err != nil {
		return "", fmt.Errorf("authcore: did_auth unknown issuer: %w", errs.ErrCredentialIssuerNotExists)
	}
	if err := c.backend.ValidateCredential(&cred, issuerDoc); err != nil {
		return "", fmt.Errorf("authcore: did_auth invalid credential: %w", errs.ErrCredentialInvalid)
	}

	if cred.CredentialSubject == nil {
		return "", fmt.Errorf("authcore: did_auth credential subject missing: %w", errs.ErrCredentialSubjectNotExists)
	}
	var subject didbackend.CredentialSubject
	if err := json.Unmarshal(cred.CredentialSubject, &subject); err != nil {
		return "", fmt.Errorf("authcore: did_auth parse credential subject: %w", errs.ErrCredentialSubjectNotExists)
	}
	if subject.ID == "" {
		return "", fmt.Errorf("authcore: did_auth subject id missing: %w", errs.ErrCredentialSubjectIDNotExists)
	}
	if subject.AppID == "" {
		return "", fmt.Errorf("authcore: did_auth subject app id missing: %w", errs.ErrCredentialSubjectAppIDNotSet)
	}
	if subject.ID != secret.DID {
		return "", fmt.Errorf("authcore: did_auth subject/client did mismatch: %w", errs.ErrCredentialSubjectBadInstance)
	}

	if time.Now().After(secret.Expiration) {
		return "", fmt.Errorf("authcore: did_auth nonce expired: %w", errs.ErrNonceExpired)
	}

	exp := time.Now().Add(c.cfg.AccessTTL)
	if !cred.ExpirationDate.IsZero() && cred.ExpirationDate.Before(exp) {
		exp = cred.ExpirationDate
	}

	accessClaims := jwt.MapClaims{
		"exp":            exp.Unix(),
		"aud":            subject.ID,
		"sub":            "AccessToken",
		"userDid":        cred.Issuer,
		"appId":          subject.AppID,
		"appInstanceDid": subject.ID,
	}
	accessToken := jwt.NewWithClaims(jwt.SigningMethodEdDSA, accessClaims)
	accessToken.Header["version"] = "1.0"
	signed, err := accessToken.SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("authcore: did_auth sign access token: %w", errs.ErrJwtSignFailed)
	}
	c.logger.Info("authcore: issued access token", zap.String("appInstanceDid", subject.ID))
	return signed, nil
}

// VerifyAccessToken validates a bearer access token and returns the
// UserInfo derived from its claims. Used by the dispatcher's access gate
// the access gate.
func (c *Core) VerifyAccessToken(tok string) (model.UserInfo, error) {
	var claims jwt.MapClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(*jwt.Token) (interface{}, error) {
		return c.signKey.Public(), nil
	}, jwt.WithValidMethods([]string{"EdDSA"}))
	if err != nil || !parsed.Valid {
		return model.UserInfo{}, errs.ErrAccessTokenExpired
	}
	sub, _ := claims["sub"].(string)
	if sub != "AccessToken" {
		return model.UserInfo{}, errs.ErrAccessTokenExpired
	}
	userDID, _ := claims["userDid"].(string)
	appInstanceDID, _ := claims["appInstanceDid"].(string)
	if userDID == "" {
		return model.UserInfo{}, errs.ErrAccessTokenExpired
	}
	return model.UserInfo{
		UID:  DeriveUID(userDID),
		DID:  userDID,
		Name: appInstanceDID,
	}, nil
}

// keyfunc resolves the verification key for the DID named in the token's
// "iss" claim, via the local document cache — the core's only use of the
// DID backend as a JWT key resolver.
func (c *Core) keyfunc(token *jwt.Token) (interface{}, error) {
	claims, ok := token.Claims.(*presentationClaims)
	if !ok {
		return nil, fmt.Errorf("authcore: unexpected claims type")
	}
	iss := claims.RegisteredClaims.Issuer
	if iss == "" {
		return nil, fmt.Errorf("authcore: missing iss claim")
	}
	doc, err := c.docs.Load(iss)
	if err != nil {
		return nil, fmt.Errorf("authcore: load signer document: %w", err)
	}
	return c.backend.AuthenticationKey(doc)
}

func randomHex(n int) (string, error) {
	if n <= 0 {
		n = 16
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
