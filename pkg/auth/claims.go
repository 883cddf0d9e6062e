package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID     uuid.UUID
	ResellerID *uuid.UUID
	Role       enums.MemberRole
	JTI        string
}

// AccessTokenClaims represents the typed JWT issued to operators.
type AccessTokenClaims struct {
	UserID     uuid.UUID        `json:"user_id"`
	ResellerID *uuid.UUID       `json:"reseller_id,omitempty"`
	Role       enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}
