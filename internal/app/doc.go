// Package app provides the application service layer.
//
// Orchestrates use cases: login and logout, the signup, verification,
// password reset and payment flows, and the dashboard lists. Sits between
// HTTP handlers and the backend API. Depends on domain interfaces, not
// concrete implementations.
package app
