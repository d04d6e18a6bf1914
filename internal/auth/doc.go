// Package auth acquires and renews the credentials used to authenticate
// Redis connections.
//
// A CredentialProvider turns an auth flow selection into credential
// snapshots: a static username/password pair, or short-lived Entra ID
// tokens obtained through the Azure identity SDK. The Refresher owns a
// provider and keeps a current credential published for concurrent readers,
// renewing expiring tokens in the background before they lapse.
package auth
