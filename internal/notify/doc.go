// Package notify renders change events into Telegram messages and
// delivers them.
//
// The pipeline is: event -> template render (named placeholders,
// validated at startup) -> mention lookup -> bounded queue -> rate-limited
// send. Every failure mode along the way logs and drops; nothing here can
// take the poll loops down.
package notify
