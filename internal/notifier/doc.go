// Package notifier delivers run outcomes to an operator-configured shell
// command.
//
// # Policy
//
// A notification fires only when a command is configured and the policy
// allows it: "always" for every run, "error" for any run that did not
// succeed, "never" to keep the command configured but silent.
//
// # Delivery
//
// The command runs through `sh -c` with the run described in TASK_*
// environment variables. Delivery is best-effort: failures and timeouts are
// logged and never reported back to the caller. A token bucket bounds how
// many commands a single tick can fire in a burst.
package notifier
