// Command nidra watches a driver through a camera and raises a drowsiness
// alert when the eyes stay closed.
package main

func main() {
	Execute()
}
