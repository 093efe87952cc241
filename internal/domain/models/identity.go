// internal/domain/models/identity.go
package models

// Identity is the caller identity supplied by the identity collaborator.
// This system trusts it as given and performs no authentication itself.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}
