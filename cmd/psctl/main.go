package main

import "github.com/pilab-dev/partner-sso/cmd/psctl/cmd"

func main() {
	cmd.Execute()
}
