// Command lexis operates the annotation pipeline from the shell: run a
// website's stages in-process, start queue workers, inspect run status,
// and manage websites and documents.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
