package model

import "time"

// Role represents the access level of an identity
type Role string

const (
	RoleUser             Role = "USER"
	RoleAdmin            Role = "ADMIN"
	RoleSecurityEngineer Role = "SECURITY_ENGINEER"
)

// ValidRole reports whether r is one of the recognized roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSecurityEngineer:
		return true
	}
	return false
}

// Identity represents a registered subject. Identities are created on
// registration and mutated only to flip Enrolled when a template is attached.
type Identity struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Role        Role      `json:"role"`
	Enrolled    bool      `json:"enrolled"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AlgorithmTag identifies the biometric modality a template was produced by.
type AlgorithmTag string

const (
	AlgorithmPrimary   AlgorithmTag = "PRIMARY"
	AlgorithmSecondary AlgorithmTag = "SECONDARY"
)

// ValidAlgorithm reports whether tag is a recognized algorithm tag.
func ValidAlgorithm(tag AlgorithmTag) bool {
	return tag == AlgorithmPrimary || tag == AlgorithmSecondary
}

// BiometricTemplate is the enrolled reference for one identity (1:1).
// The embedding is the sole secret; salt and digest exist to detect
// unauthorized modification, not to hide the embedding.
// Immutable once created, except for attaching an external credential.
type BiometricTemplate struct {
	OwnerID               string       `json:"ownerId"`
	Algorithm             AlgorithmTag `json:"algorithm"`
	Embedding             []float64    `json:"-"` // never serialized
	Salt                  string       `json:"-"`
	IntegrityDigest       string       `json:"-"`
	EncryptedBlobRef      string       `json:"encryptedBlobRef"`
	ExternalCredentialRef string       `json:"externalCredentialRef,omitempty"`
	CreatedAt             time.Time    `json:"createdAt"`
}
