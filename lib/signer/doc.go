// Package signer produces and verifies the detached signatures carried by
// every envelope. The cryptographic work happens in an opaque Backend
// (in-process OpenPGP or an external gpg); this package fixes the
// contract: encoded signature tokens in, a validity verdict plus the
// signer's name, email and key fingerprint out.
//
// Backend calls are serialized. A gpg agent or smartcard admits one
// operation at a time, and the in-process backend gains nothing from
// concurrency, so the Signer takes a single mutex around every Sign and
// Verify.
package signer
