package main

import "github.com/nimburion/dbext/pkg/cli"

func main() {
	cli.Execute(cli.NewCommand(cli.CommandOptions{
		Name:        "dbext",
		Description: "Transactor extensions: on-delete notification and pre-commit hooks",
	}))
}
