package keyring

import (
	"crypto/sha1" //nolint:gosec // The WKD hashed local part is SHA-1 by definition.
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"github.com/tv42/zbase32"
)

// errBadIdentity is returned for identities that are not plain email addresses.
var errBadIdentity = errors.New("identity is not an email address")

// splitEmail returns the local part and the lowercased domain of an address.
func splitEmail(email string) (string, string, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", "", fmt.Errorf("%q: %w", email, errBadIdentity)
	}

	at := strings.LastIndexByte(email, '@')

	return email[:at], strings.ToLower(email[at+1:]), nil
}

// wkdHash returns the z-base-32 encoded SHA-1 of the lowercased local part.
func wkdHash(local string) string {
	sum := sha1.Sum([]byte(strings.ToLower(local))) //nolint:gosec // See import.

	return zbase32.EncodeToString(sum[:])
}

// WKDAdvancedURL returns the advanced-method Web Key Directory URL for email.
func WKDAdvancedURL(email string) (string, error) {
	local, domain, err := splitEmail(email)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("https://openpgpkey.%s/.well-known/openpgpkey/%s/hu/%s?l=%s",
		domain, domain, wkdHash(local), url.QueryEscape(local)), nil
}

// WKDDirectURL returns the direct-method Web Key Directory URL for email.
func WKDDirectURL(email string) (string, error) {
	local, domain, err := splitEmail(email)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("https://%s/.well-known/openpgpkey/hu/%s?l=%s",
		domain, wkdHash(local), url.QueryEscape(local)), nil
}

// VKSURL returns the by-email lookup URL of a Verifying Keyserver.
func VKSURL(keyServer, email string) string {
	return strings.TrimRight(keyServer, "/") + "/vks/v1/by-email/" + url.PathEscape(email)
}
