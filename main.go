package main

import "github.com/parlaytech/updown-arb/cmd"

func main() {
	cmd.Execute()
}
