// Package cloud reads account data from the Yarbo cloud API.
//
// The local bridge works without it. When an account is configured the
// cloud supplies the robot serial number, the uploaded map and its
// satellite background, notification messages and firmware versions.
//
// Authentication uses the vendor's Auth0 tenant: a pre-issued token,
// a refresh token, or a password login, renewed five minutes before expiry.
package cloud
