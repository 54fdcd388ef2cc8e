package main

import "github.com/sddekit/sddemake/cmd"

func main() {
	cmd.Execute()
}
