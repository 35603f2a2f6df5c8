package main

import (
	"os"
	"strconv"
)

func main() {
	code := 7
	if len(os.Args) > 1 {
		code, _ = strconv.Atoi(os.Args[1])
	}
	os.Exit(code)
}
