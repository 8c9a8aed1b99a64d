package main

import "github.com/mabhi256/dllcheck/cmd"

func main() {
	cmd.Execute()
}
