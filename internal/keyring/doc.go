// Package keyring resolves OpenPGP public keys by email identity.
//
// Lookup order: the local key cache, the Web Key Directory (advanced then
// direct method) and finally the keys.openpgp.org VKS by-email endpoint.
// Keys fetched over the network are written back to the local cache.
package keyring
