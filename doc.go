// Package psso holds the platform signing keys and the credential helpers shared
// by the partner login flows. The flows themselves live in services.
package psso
