package main

import "github.com/drgolem/audiorenderer/cmd"

func main() {
	cmd.Execute()
}
