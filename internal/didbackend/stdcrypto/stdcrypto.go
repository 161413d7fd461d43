// Package stdcrypto is the default didbackend.Backend adapter:
// canonical-JSON signing over Ed25519 keys resolved from a DID document's
// verificationMethod list. It exists so the module is self-contained and
// testable; callers are free to substitute any other Backend.
package stdcrypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chenyukaola/feeds-service/internal/didbackend"
	"github.com/chenyukaola/feeds-service/internal/diddoc"
)

// Backend implements didbackend.Backend.
type Backend struct{}

// New constructs a stdcrypto Backend.
func New() *Backend { return &Backend{} }

var _ didbackend.Backend = (*Backend)(nil)

// ParseDocument decodes raw JSON into a diddoc.Document.
func (Backend) ParseDocument(raw []byte) (*diddoc.Document, error) {
	var doc diddoc.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("stdcrypto: parse document: %w", err)
	}
	doc.Raw = raw
	if doc.ID == "" {
		return nil, fmt.Errorf("stdcrypto: document missing id")
	}
	return &doc, nil
}

// ValidateDocument checks that the document names at least one
// authentication key and that key resolves to a verificationMethod entry.
// There is no document-level expiration field in the simplified Document
// shape; expiration lives on credentials, not documents.
func (Backend) ValidateDocument(doc *diddoc.Document) error {
	if len(doc.Authentication) == 0 {
		return fmt.Errorf("stdcrypto: document has no authentication method")
	}
	if resolveKey(doc, doc.Authentication[0]) == nil {
		return fmt.Errorf("stdcrypto: authentication method %s not found", doc.Authentication[0])
	}
	return nil
}

// AuthenticationKey resolves doc's primary authentication verification key.
func (Backend) AuthenticationKey(doc *diddoc.Document) (ed25519.PublicKey, error) {
	if doc == nil || len(doc.Authentication) == 0 {
		return nil, fmt.Errorf("stdcrypto: document has no authentication method")
	}
	key := resolveKey(doc, doc.Authentication[0])
	if key == nil {
		return nil, fmt.Errorf("stdcrypto: authentication method %s not found", doc.Authentication[0])
	}
	return key, nil
}

// ValidateCredential verifies the credential's detached Ed25519 proof
// against a key published in the issuer's DID document.
func (b Backend) ValidateCredential(cred *didbackend.Credential, issuerDoc *diddoc.Document) error {
	if cred == nil {
		return fmt.Errorf("stdcrypto: nil credential")
	}
	if !cred.ExpirationDate.IsZero() && time.Now().After(cred.ExpirationDate) {
		return fmt.Errorf("stdcrypto: credential expired at %s", cred.ExpirationDate)
	}
	payload, err := canonicalPayload(cred.Issuer, cred.CredentialSubject, cred.ExpirationDate)
	if err != nil {
		return err
	}
	return verifyProof(issuerDoc, cred.Proof, payload)
}

// ParsePresentation decodes the "presentation" claim into a Presentation.
func (Backend) ParsePresentation(raw json.RawMessage) (*didbackend.Presentation, error) {
	var vp didbackend.Presentation
	if err := json.Unmarshal(raw, &vp); err != nil {
		return nil, fmt.Errorf("stdcrypto: parse presentation: %w", err)
	}
	return &vp, nil
}

// ValidatePresentation verifies the presentation's detached Ed25519 proof
// against a key published in the holder's DID document.
func (b Backend) ValidatePresentation(vp *didbackend.Presentation, holderDoc *diddoc.Document) error {
	if vp == nil {
		return fmt.Errorf("stdcrypto: nil presentation")
	}
	payload, err := canonicalPayload(vp.Holder, vp.Nonce, vp.Realm)
	if err != nil {
		return err
	}
	return verifyProof(holderDoc, vp.Proof, payload)
}

func canonicalPayload(parts ...any) ([]byte, error) {
	b, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("stdcrypto: canonicalize: %w", err)
	}
	return b, nil
}

func verifyProof(doc *diddoc.Document, proof didbackend.Proof, payload []byte) error {
	if doc == nil {
		return fmt.Errorf("stdcrypto: no document to resolve verification key")
	}
	key := resolveKey(doc, proof.VerificationMethod)
	if key == nil {
		return fmt.Errorf("stdcrypto: verification method %s not found", proof.VerificationMethod)
	}
	if !ed25519.Verify(key, payload, proof.ProofValue) {
		return fmt.Errorf("stdcrypto: signature verification failed")
	}
	return nil
}

func resolveKey(doc *diddoc.Document, verificationMethodID string) ed25519.PublicKey {
	for _, vm := range doc.VerificationMethod {
		if vm.ID != verificationMethodID && vm.ID != doc.ID+"#"+verificationMethodID {
			continue
		}
		key, err := base64.StdEncoding.DecodeString(vm.PublicKeyMultibase)
		if err != nil || len(key) != ed25519.PublicKeySize {
			return nil
		}
		return ed25519.PublicKey(key)
	}
	return nil
}
