// Package auth implements a time bound credential lifecycle attached to a
// principal record: email confirmation, password recovery and bounded
// multi-session token rotation.
//
// Confirmation:
//   - Confirmations registers save hooks on the storage. Creating an account
//     that is neither confirmed nor invited mails confirmation instructions.
//     Changing the email of a persisted account keeps the stored address and
//     parks the new one in UnconfirmedEmail until it is confirmed.
//   - Confirming after ConfirmationExpiration fails with ErrTokenExpired and
//     confirming twice fails with ErrAlreadyConfirmed.
//
// Recovery:
//   - Recoveries issues reset tokens to confirmed accounts. Any password
//     change invalidates the outstanding token, and a password change after
//     ResetPasswordExpiration fails with ErrTokenExpired.
//
// Sessions:
//   - Sessions keeps at most SimultaneousSessions tokens per account, oldest
//     first, and rewrites the list atomically through AuthTokenStore.
//
// Mail is handed to a Mailer. Postman renders messages with pongo2 templates
// and delivers them inline or from a bounded background queue. Mail failures
// are logged and never undo a save.
package auth
