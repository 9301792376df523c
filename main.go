package main

import "github.com/phajek/mediascan/cmd"

func main() {
	cmd.Execute()
}
