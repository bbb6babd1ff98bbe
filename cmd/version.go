package cmd

import "fmt"

func printVersion() {
	fmt.Printf("eloquent-chat %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
