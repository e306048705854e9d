/*
Package security implements the two external collaborators the catalog
metastore delegates to rather than owning itself: secret storage and
storage-backend credential vending.

UserSecretsManager encrypts and stores secret material (principal
credentials, mainly) outside the entity record itself; only an opaque
URN reference is persisted on the entity. EncryptedSecretsManager seals
secrets with AES-256-GCM and tags each ciphertext with an HMAC-SHA256 so
corruption between write and read is detected rather than silently
decrypted into garbage.

StorageIntegration vends short-lived, location-scoped credentials for a
catalog's storage backend and validates whether a set of locations falls
within what a storage integration is configured to allow.
StaticStorageIntegration is a reference implementation with no cloud SDK
dependency, suitable for tests.
*/
package security
