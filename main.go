package main

import "github.com/mj1618/voxnav/cmd"

func main() {
	cmd.Execute()
}
