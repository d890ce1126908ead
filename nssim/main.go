// Command nssim runs network simulations from the command line.
package main

import (
	"github.com/sarchlab/nssim/nssim/cmd"
)

func main() {
	cmd.Execute()
}
