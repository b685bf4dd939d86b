// The main package for the regwatch executable.
package main

import (
	"github.com/regwatch/regwatch/cmd"
)

func main() {
	cmd.Execute()
}
