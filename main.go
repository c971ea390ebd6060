package main

import "github.com/jmehdipour/agency-crm/cmd"

func main() {
	cmd.Execute()
}
