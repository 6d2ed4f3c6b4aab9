// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (user.go, project.go, wallet.go, ...) hold entity
// records and the ports the rest of the application talks to. No
// implementation code, just contracts.
package domain
