// core is the CLI entry point wrapping the Command Facade.
package main

import (
	"os"

	"github.com/tdat-dev/corengine/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
