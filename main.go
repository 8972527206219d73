package main

import "github.com/NOVASWAY/Seth2.0-sub005/cmd"

func main() {
	cmd.Execute()
}
