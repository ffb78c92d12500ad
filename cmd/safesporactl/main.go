// Command safesporactl is the operator CLI for the SafeSpora admin back office.
//
//	safesporactl migrate up
//	safesporactl migrate down 1
//	safesporactl admin bootstrap --email ops@safespora.org --name "Ops Lead"
//	safesporactl jobs send-test-mail --to ops@safespora.org
//	safesporactl jobs queue
//
// Configuration comes from the same environment variables as the server. A
// .env file in the working directory, or the one named by --env-file, is
// loaded first without overriding variables already set.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(defaultDeps()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
