// Package proc is a low-level package that provides methods to manipulate
// the process we are debugging.
//
// proc implements all core functionality including:
// * launching / attaching to a process through a tracing Backend
// * the software breakpoint table and its byte patching protocol
// * process manipulation (start, continue, single step)
// * reading the ELF image and building the instruction table
// * methods to explore registers, memory and the memory map of the process
//
package proc
