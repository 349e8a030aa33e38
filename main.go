package main

import "github.com/condoflow/ms-go-reconciliation/cmd"

func main() {
	cmd.Execute()
}
