package console

/*
Operator console of the emulator.

Everything the running system wants the operator to see (boot messages,
halts, workload progress) is written line by line to a Console. Writes are
handed over a string channel to a goroutine that owns the output, so any
goroutine may write.
*/

// Console receives operator messages
type Console interface {
	WriteConsole(msg string) error
}

// lines splits msg into non-empty, newline terminated lines
func lines(msg string, out chan<- string) int {
	n := 0
	start := 0
	for i := 0; i <= len(msg); i++ {
		if i < len(msg) && msg[i] != '\n' {
			continue
		}
		if i > start {
			out <- msg[start:i] + "\n"
			n++
		}
		start = i + 1
	}
	return n
}
