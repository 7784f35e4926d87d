// Command libfs is the update/mount CLI of spec.md §6.
package main

import (
	"os"

	"github.com/cghanke/libfs/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
