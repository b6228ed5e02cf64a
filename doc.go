// Package auth provides email and password sign up and sign in backed by a
// shared SQL connection, database stored sessions, and go-router HTTP handlers.
//
// Attempts:
//   - Every SignUp, SignIn and SignInSocial call runs one Attempt through the
//     AttemptMachine: idle, submitted, validating, then validated or
//     rejected, then creating or authenticating, and finally issued, rejected
//     or failed. Callers only see the final outcome.
//   - Terminal transitions are reported to the ActivitySink. Sinks run best
//     effort and their errors are logged.
//
// Errors:
//   - Every error returned by Service is a *goerrors.Error. Classify maps it
//     onto KindValidation, KindRejection or KindInfrastructure so clients
//     decide between field messages, a toast with the service message, or a
//     generic failure.
//
// Sessions:
//   - A session is a row in the sessions table that expires after
//     Config.GetSessionMaxAge, 30 days by default. The token handed to clients
//     is a signed JWT whose jti is the session id, so deleting the row revokes
//     it. Resolved sessions may be kept in a SessionCache for up to
//     Config.GetSessionCacheMaxAge.
//
// Roles:
//   - Accounts carry one of two roles, startup or investor, chosen at sign up.
package auth
