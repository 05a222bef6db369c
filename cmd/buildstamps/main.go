// Buildstamps tracks which build inputs changed since the last successful
// build of each target.
package main

import "github.com/albertocavalcante/buildstamps/cmd/buildstamps/internal/cli"

func main() {
	cli.Execute()
}
