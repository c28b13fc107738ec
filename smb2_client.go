package main

import (
	"fmt"
	"os"

	"github.com/macos-fuse-t/smbclient/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "smbclient:", err)
		os.Exit(1)
	}
}
