package secrets

import (
	"context"

	"toolgate/pkg/models"
)

// Store is the credential store consumed by the gateway. The gateway only
// ever reads; writes belong to the plugin-management surface that owns
// credential lifecycle.
type Store interface {
	// ResolveSecrets returns the records applying to one caller and
	// plugin: user-scoped records for ownerID first, then global records
	// for keys the user scope did not cover. Values stay encrypted;
	// decryption happens per call in the gateway.
	ResolveSecrets(ctx context.Context, ownerID, pluginID string) ([]models.SecretRecord, error)
}

// Decrypt opens one record's value with the store key. Callers must treat
// the returned plaintext as transient: use it for the dispatch at hand
// and let it go out of scope, never cache or log it.
func Decrypt(rec models.SecretRecord, key *Key) ([]byte, error) {
	return Open(rec.EncryptedValue, key)
}
