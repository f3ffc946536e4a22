// Package sso is a single sign-on identity service. Users register with
// their national id and profile, verify their email with a six digit code
// and create a password. They can then log in and receive an HMAC signed
// session token that relying parties exchange for the user profile.
//
// Registration flow:
//   - RegisterUserHandler stores the profile and mails the verification
//     code. A delivery failure never discards the record.
//   - VerifyEmailHandler and CreatePasswordHandler move the user through
//     the RegistrationStateMachine (submitted, email_verified, password_set).
//     The state is derived from the record, never stored.
//
// Tokens:
//   - TokenServiceImpl issues and validates the session tokens. Auther pairs
//     it with the credential store to log users in and resolve tokens back
//     into users.
//
// HTTP:
//   - RegisterAuthRoutes mounts the browser flow, RegisterAPIRoutes the
//     relying party endpoints (/api/sso-login, /api/get_user, /api/me).
package sso
