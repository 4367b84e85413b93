package util

import "net/url"

// Key isolates a logical key under a namespace: "<ns>:<key>".
// An empty namespace leaves the key untouched.
func Key(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + key
}

// ReturnPath is the in-app path an auth flow should send the user back to
// after signing in from the given box.
func ReturnPath(boxSlug string) string {
	return "/flowbox/" + url.PathEscape(boxSlug) + "/discover"
}
