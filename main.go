package main

import "github.com/adamwilson22/Velaa-Backend/cmd"

func main() {
	cmd.Execute()
}
