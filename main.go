package main

import "github.com/webguard-sec/webguard/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
