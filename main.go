package main

import (
	"fmt"
	"os"

	"github.com/muskanmahajan37/RefineDB/cmd/rdbcore"
)

func main() {
	if err := rdbcore.RootCommand.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
