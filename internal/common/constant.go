package common

// TokenTypeAccess is the value of the token_type claim stamped into every
// access token. Refresh tokens are opaque and carry no claims at all.
const TokenTypeAccess = "access"
