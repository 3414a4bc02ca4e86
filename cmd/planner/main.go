// Command planner is the PCB assembly planning CLI entrypoint.
package main

import "github.com/makerpnp/planner/internal/cli"

func main() {
	cli.Execute()
}
