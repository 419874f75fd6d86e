// Package auth provides passwordless authentication: magic links
// delivered by email and Google OAuth. Both paths auto-register unknown
// users on first login. Sessions are signed cookies, no server-side
// session storage.
package auth
