// Package iam provides identity and access management services for gatekeeper.
//
// The IAM service centralizes:
//
//   - Identity resolution: bearer token to a loaded principal with its
//     effective permission set (request path)
//   - Accounts: local and external signup, login, refresh rotation, logout,
//     password and email-verification flows
//   - Administration: role CRUD, role-permission reconciliation, user
//     creation and grants
//
// Request Flow:
//
//	Request → middleware.Gate → Service.Resolve → TokenCodec.DecodeToken
//	       ↓
//	   UserRepository.LoadPrincipal → auth.Principal.CheckScopes
//
// Nothing is cached between requests. Every resolution reads the user, its
// roles and every permission in two queries, so a grant or revocation is
// visible on the next request.
package iam
