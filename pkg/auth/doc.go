// Package auth verifies bearer ID tokens and maps their claims to a portal
// identity.
//
// Tokens are OpenID Connect ID tokens issued by the organization's identity
// provider. The authenticator verifies signature, issuer, audience and
// expiry with go-oidc, then reads the identity claims:
//
//	sub     user ID (required)
//	org_id  organization ID (required)
//	role    organization role (required)
//	name    display name (optional)
//
// Usage:
//
//	authn, err := auth.NewOIDCAuthenticator(ctx, auth.OIDCConfig{
//		IssuerURL: "https://id.example.com",
//		ClientID:  "portal",
//	})
//	identity, err := authn.Authenticate(ctx, rawToken)
package auth
