package authcore

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chenyukaola/feeds-service/internal/didbackend"
	"github.com/chenyukaola/feeds-service/internal/didbackend/stdcrypto"
	"github.com/chenyukaola/feeds-service/internal/diddoc"
	"github.com/chenyukaola/feeds-service/internal/errs"
)

const serverDID = "did:example:server"

type fixture struct {
	core       *Core
	docs       *diddoc.Cache
	clientDID  string
	clientPriv ed25519.PrivateKey
	clientPub  ed25519.PublicKey
	issuerDID  string
	issuerPriv ed25519.PrivateKey
	serverPub  ed25519.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	serverPub, serverPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	docs, err := diddoc.New(t.TempDir(), serverDID, nil)
	if err != nil {
		t.Fatal(err)
	}
	core := New(Config{
		ServerDID:    serverDID,
		ChallengeTTL: time.Minute,
		AccessTTL:    time.Hour,
		NonceBytes:   16,
	}, serverPriv, docs, stdcrypto.New(), nil)

	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	issuerPub, issuerPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		core:       core,
		docs:       docs,
		clientDID:  "did:example:client1",
		clientPriv: clientPriv,
		clientPub:  clientPub,
		issuerDID:  "did:example:issuer1",
		issuerPriv: issuerPriv,
		serverPub:  serverPub,
	}
	if err := docs.Save(f.issuerDID, didDocument(f.issuerDID, issuerPub)); err != nil {
		t.Fatal(err)
	}
	return f
}

func didDocument(did string, pub ed25519.PublicKey) *diddoc.Document {
	vmID := did + "#key-1"
	return &diddoc.Document{
		ID: did,
		VerificationMethod: []diddoc.VerificationMethod{{
			ID:                 vmID,
			Type:               "Ed25519VerificationKey2020",
			Controller:         did,
			PublicKeyMultibase: base64.StdEncoding.EncodeToString(pub),
		}},
		Authentication: []string{vmID},
	}
}

func canonical(parts ...any) []byte {
	b, _ := json.Marshal(parts)
	return b
}

func (f *fixture) clientDoc() *diddoc.Document { return didDocument(f.clientDID, f.clientPub) }

func (f *fixture) signIn(t *testing.T) (challengeJWT, nonce string) {
	t.Helper()
	docJSON, err := json.Marshal(f.clientDoc())
	if err != nil {
		t.Fatal(err)
	}
	challengeJWT, err = f.core.SignIn(docJSON)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	var claims jwt.MapClaims
	_, err = jwt.ParseWithClaims(challengeJWT, &claims, func(*jwt.Token) (interface{}, error) {
		return f.serverPub, nil
	})
	if err != nil {
		t.Fatalf("parse challenge: %v", err)
	}
	nonce, _ = claims["nonce"].(string)
	if nonce == "" {
		t.Fatal("challenge jwt missing nonce claim")
	}
	return challengeJWT, nonce
}

func (f *fixture) buildPresentationJWT(t *testing.T, nonce, realm, subjectID, appID string, credExp time.Time) string {
	t.Helper()
	subjectBytes, err := json.Marshal(didbackend.CredentialSubject{ID: subjectID, AppID: appID})
	if err != nil {
		t.Fatal(err)
	}
	credPayload := canonical(f.issuerDID, json.RawMessage(subjectBytes), credExp)
	cred := didbackend.Credential{
		Issuer:            f.issuerDID,
		ExpirationDate:    credExp,
		CredentialSubject: subjectBytes,
		Proof: didbackend.Proof{
			VerificationMethod: f.issuerDID + "#key-1",
			ProofValue:         ed25519.Sign(f.issuerPriv, credPayload),
		},
	}

	vpPayload := canonical(f.clientDID, nonce, realm)
	vp := didbackend.Presentation{
		Nonce:                nonce,
		Realm:                realm,
		Holder:               f.clientDID,
		VerifiableCredential: []didbackend.Credential{cred},
		Proof: didbackend.Proof{
			VerificationMethod: f.clientDID + "#key-1",
			ProofValue:         ed25519.Sign(f.clientPriv, vpPayload),
		},
	}
	vpBytes, err := json.Marshal(vp)
	if err != nil {
		t.Fatal(err)
	}

	claims := presentationClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: f.clientDID},
		Presentation:      vpBytes,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(f.clientPriv)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestSignInDidAuth_RoundTrip(t *testing.T) {
	f := newFixture(t)
	_, nonce := f.signIn(t)

	presJWT := f.buildPresentationJWT(t, nonce, serverDID, f.clientDID, "app-123", time.Now().Add(time.Hour))
	accessJWT, err := f.core.DidAuth(presJWT)
	if err != nil {
		t.Fatalf("DidAuth: %v", err)
	}

	var claims jwt.MapClaims
	_, err = jwt.ParseWithClaims(accessJWT, &claims, func(*jwt.Token) (interface{}, error) {
		return f.serverPub, nil
	})
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if aud, _ := claims["aud"].(string); aud != f.clientDID {
		t.Fatalf("aud = %q, want %q", aud, f.clientDID)
	}
	expUnix, _ := claims["exp"].(float64)
	if time.Unix(int64(expUnix), 0).After(time.Now().Add(time.Hour + time.Minute)) {
		t.Fatalf("exp too far in the future")
	}
}

func TestDidAuth_NonceReuseRejected(t *testing.T) {
	f := newFixture(t)
	_, nonce := f.signIn(t)
	presJWT := f.buildPresentationJWT(t, nonce, serverDID, f.clientDID, "app-123", time.Now().Add(time.Hour))

	if _, err := f.core.DidAuth(presJWT); err != nil {
		t.Fatalf("first DidAuth: %v", err)
	}
	if _, err := f.core.DidAuth(presJWT); err == nil {
		t.Fatalf("expected second use of the same nonce to fail")
	}
}

func TestDidAuth_WrongRealmRejected(t *testing.T) {
	f := newFixture(t)
	_, nonce := f.signIn(t)
	presJWT := f.buildPresentationJWT(t, nonce, "did:example:not-the-server", f.clientDID, "app-123", time.Now().Add(time.Hour))

	if _, err := f.core.DidAuth(presJWT); err == nil {
		t.Fatalf("expected wrong-realm presentation to be rejected")
	}
}

func TestDidAuth_CredentialExpiryCapsAccessToken(t *testing.T) {
	f := newFixture(t)
	_, nonce := f.signIn(t)
	shortExp := time.Now().Add(time.Minute)
	presJWT := f.buildPresentationJWT(t, nonce, serverDID, f.clientDID, "app-123", shortExp)

	accessJWT, err := f.core.DidAuth(presJWT)
	if err != nil {
		t.Fatalf("DidAuth: %v", err)
	}
	var claims jwt.MapClaims
	if _, err := jwt.ParseWithClaims(accessJWT, &claims, func(*jwt.Token) (interface{}, error) {
		return f.serverPub, nil
	}); err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	expUnix, _ := claims["exp"].(float64)
	if time.Unix(int64(expUnix), 0).After(shortExp.Add(time.Second)) {
		t.Fatalf("access token exp should be capped by credential expiration")
	}
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	f := newFixture(t)
	claims := jwt.MapClaims{
		"exp":            time.Now().Add(-time.Minute).Unix(),
		"aud":            f.clientDID,
		"sub":            "AccessToken",
		"userDid":        f.issuerDID,
		"appId":          "app-123",
		"appInstanceDid": f.clientDID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(f.core.signKey)
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.core.VerifyAccessToken(signed)
	if err != errs.ErrAccessTokenExpired {
		t.Fatalf("got %v, want ErrAccessTokenExpired", err)
	}
}

func TestVerifyAccessToken_ValidReturnsUserInfo(t *testing.T) {
	f := newFixture(t)
	_, nonce := f.signIn(t)
	presJWT := f.buildPresentationJWT(t, nonce, serverDID, f.clientDID, "app-123", time.Now().Add(time.Hour))
	accessJWT, err := f.core.DidAuth(presJWT)
	if err != nil {
		t.Fatalf("DidAuth: %v", err)
	}
	info, err := f.core.VerifyAccessToken(accessJWT)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if info.DID != f.issuerDID {
		t.Fatalf("DID = %q, want %q", info.DID, f.issuerDID)
	}
	if info.UID != DeriveUID(f.issuerDID) {
		t.Fatalf("UID = %q, want deterministic derivation of %q", info.UID, f.issuerDID)
	}
}
