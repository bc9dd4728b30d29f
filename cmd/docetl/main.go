// Command docetl runs and schedules document-processing pipelines.
package main

import (
	"fmt"
	"os"

	"github.com/docetl-project/docetl/internal/script"
)

// version is set at build time via -ldflags.
var version = "0.0.0"

func main() {
	if len(os.Args) > 1 && os.Args[1] == script.WorkerFlag {
		script.RunChildWorker()
		return
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
