package main

import "github.com/oshokin/archburn/cmd/archburn/cmd"

func main() {
	cmd.Execute()
}
