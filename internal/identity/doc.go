// Package identity handles key material and event authentication.
//
// An identity is a secp256k1 keypair. The public half travels as 64-char
// lowercase hex on the wire and as a bech32 npub string in user-facing
// surfaces; both forms name the same 32-byte x-only point and the package
// converts freely between them.
//
// LocalSigner holds a decrypted private key in memory and finalizes event
// drafts: it stamps the author, computes the content-addressed ID, and
// produces a 64-byte BIP-340 signature. Verify is the read-side
// counterpart and rejects events whose ID or signature does not hold.
//
// Private keys at rest live in a keystore file encrypted with
// XChaCha20-Poly1305 under a scrypt-derived key, so a stolen config
// directory does not leak the signing key.
package identity
