// Package didbackend defines the contracts a DID/JWT cryptographic
// library must satisfy: document parsing and validation, credential
// validation, and Verifiable Presentation validation. The auth core
// depends only on these interfaces; internal/didbackend/stdcrypto provides
// a concrete, runnable default so the module stays self-contained.
package didbackend

import (
	"crypto/ed25519"
	"encoding/json"
	"time"

	"github.com/chenyukaola/feeds-service/internal/diddoc"
)

// DocumentBackend parses and validates DID documents.
type DocumentBackend interface {
	// ParseDocument decodes raw JSON into a Document.
	ParseDocument(raw []byte) (*diddoc.Document, error)
	// ValidateDocument checks the document's signature chain and expiration.
	ValidateDocument(doc *diddoc.Document) error
	// AuthenticationKey resolves doc's primary authentication key, used by
	// the auth core as a JWT Keyfunc target when verifying a JWT signed by
	// that DID's controller.
	AuthenticationKey(doc *diddoc.Document) (ed25519.PublicKey, error)
}

// Proof is a simplified detached signature over a canonical JSON payload,
// sufficient to model "cryptographic integrity" checks without pinning a
// full Linked-Data-Proofs implementation.
type Proof struct {
	Type               string    `json:"type"`
	VerificationMethod string    `json:"verificationMethod"`
	Created            time.Time `json:"created"`
	ProofValue         []byte    `json:"proofValue"`
}

// Credential is a Verifiable Credential (GLOSSARY).
type Credential struct {
	Issuer            string          `json:"issuer"`
	ExpirationDate    time.Time       `json:"expirationDate"`
	CredentialSubject json.RawMessage `json:"credentialSubject"`
	Proof             Proof           `json:"proof"`
}

// CredentialSubject is the shape authcore requires from a credential's
// subject: the application-instance DID and the app id.
type CredentialSubject struct {
	ID    string `json:"id"`
	AppID string `json:"appDid"`
}

// Presentation is a Verifiable Presentation (GLOSSARY): a signed bundle of
// credentials plus the nonce/realm binding it to a specific challenge.
type Presentation struct {
	Nonce                string       `json:"nonce"`
	Realm                string       `json:"realm"`
	Holder               string       `json:"holder"`
	VerifiableCredential []Credential `json:"verifiableCredential"`
	Proof                Proof        `json:"proof"`
}

// CredentialValidator checks a single credential's cryptographic integrity.
type CredentialValidator interface {
	ValidateCredential(cred *Credential, issuerDoc *diddoc.Document) error
}

// PresentationValidator parses and validates a Verifiable Presentation.
type PresentationValidator interface {
	ParsePresentation(raw json.RawMessage) (*Presentation, error)
	ValidatePresentation(vp *Presentation, holderDoc *diddoc.Document) error
}

// Backend bundles the three contracts the auth core needs from the
// DID/JWT cryptographic library.
type Backend interface {
	DocumentBackend
	CredentialValidator
	PresentationValidator
}
