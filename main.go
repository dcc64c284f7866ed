package main

import "github.com/scrapekit/saasdir/cmd"

func main() {
	cmd.Execute()
}
