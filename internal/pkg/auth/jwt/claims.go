package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JWT claims carried by user identity tokens.
// The identity established here is what gets handed to the realtime layer:
// the websocket auth frame carries the same user id that REST calls present
// through the Authorization header.
type Payload struct {
	// StandardClaims embeds the JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer).
	jwt.StandardClaims `json:"standard_claims"`

	// UserID is the numeric account id of the authenticated user.
	UserID int64 `json:"user_id"`

	// Username is the unique login name, included so handlers can log a
	// human-readable identity without a database round trip.
	Username string `json:"username"`
}
