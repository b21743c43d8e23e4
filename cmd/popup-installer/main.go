package main

import "github.com/gtk-phone-popup/packager/cmd/popup-installer/cmd"

func main() {
	cmd.Execute()
}
