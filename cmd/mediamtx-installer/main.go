package main

import "github.com/oshokin/mediamtx-installer/cmd/mediamtx-installer/cmd"

func main() {
	cmd.Execute()
}
