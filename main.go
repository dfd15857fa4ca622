// The main package for the pagalgana-crawler executable.
package main

import (
	"github.com/musicdex/pagalgana-crawler/cmd"
)

func main() {
	cmd.Execute()
}
