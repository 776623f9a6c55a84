// Focus Vault CLI entry point
//
// Focus Vault (fv) is a study session timer. It keeps elapsed time in a
// local checkpoint and syncs it to the session service, queueing writes
// while offline and replaying them in order once the service is back.
package main

import "github.com/jbctechsolutions/focusvault/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}
