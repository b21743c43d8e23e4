package main

import "github.com/gtk-phone-popup/packager/cmd/popup-verifier/cmd"

func main() {
	cmd.Execute()
}
