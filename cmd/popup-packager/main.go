package main

import "github.com/gtk-phone-popup/packager/cmd/popup-packager/cmd"

func main() {
	cmd.Execute()
}
