package main

import (
	"fmt"
	"os"
	"runtime"
)

func init() {
	// keep main on the traced thread
	runtime.LockOSThread()
}

//go:noinline
func step(i, acc int) int {
	return acc + i
}

func main() {
	acc := 0
	for i := 0; i < 3; i++ {
		acc = step(i, acc)
	}
	fmt.Println("acc", acc)
	os.Exit(acc)
}
