package main

import "github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/cli"

func main() {
	cli.Execute()
}
