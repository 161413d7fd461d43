package authcore

import "github.com/gofrs/uuid/v5"

// didNamespace is a fixed namespace UUID used to derive a stable UID from a
// user's DID string via UUIDv5 (RFC 4122 section 4.3) — the same DID always maps
// to the same UID, without a server-side identity table.
var didNamespace = uuid.Must(uuid.FromString("a3f1c9ee-8b8e-4e53-9c0e-2e9c9d9a9b10"))

// DeriveUID computes UserInfo.UID deterministically from a DID string.
func DeriveUID(did string) string {
	return uuid.NewV5(didNamespace, did).String()
}
