package cmd

import (
	"bufio"
	"io"
	"sync"
)

// consoleInput owns stdin for an interactive session. A single goroutine
// reads lines; a waiting certificate prompt gets the next line, otherwise
// it goes to the input loop. Prompts can be raised from any goroutine,
// including a reconnect running while the input loop is blocked on Lines.
type consoleInput struct {
	lines  chan string
	eof    chan struct{}
	closed chan struct{}

	closeOnce sync.Once
	askMu     sync.Mutex // one prompt at a time

	mu     sync.Mutex
	answer chan string
	wake   chan struct{}
}

func newConsoleInput(r io.Reader) *consoleInput {
	ci := &consoleInput{
		lines:  make(chan string),
		eof:    make(chan struct{}),
		closed: make(chan struct{}),
		wake:   make(chan struct{}),
	}
	go ci.read(bufio.NewReader(r))
	return ci
}

// Lines delivers lines not claimed by a prompt.
func (ci *consoleInput) Lines() <-chan string { return ci.lines }

// EOF is closed once the reader hits end of input or a read error.
func (ci *consoleInput) EOF() <-chan struct{} { return ci.eof }

// Close releases any waiting prompt and stops routing lines. The read
// goroutine stays parked in its blocking read until the reader returns.
func (ci *consoleInput) Close() {
	ci.closeOnce.Do(func() { close(ci.closed) })
}

func (ci *consoleInput) read(r *bufio.Reader) {
	defer close(ci.eof)
	for {
		line, err := r.ReadString('\n')
		if line != "" && !ci.route(line) {
			return
		}
		if err != nil {
			return
		}
	}
}

// route hands line to a waiting prompt or to Lines. A prompt that starts
// while the line is still waiting for the input loop takes it instead.
func (ci *consoleInput) route(line string) bool {
	for {
		ci.mu.Lock()
		if answer := ci.answer; answer != nil {
			ci.answer = nil
			ci.mu.Unlock()
			answer <- line
			return true
		}
		wake := ci.wake
		ci.mu.Unlock()

		select {
		case ci.lines <- line:
			return true
		case <-wake:
		case <-ci.closed:
			return false
		}
	}
}

// ask waits for the next line. It reports false at end of input or after Close.
func (ci *consoleInput) ask() (string, bool) {
	ci.askMu.Lock()
	defer ci.askMu.Unlock()

	answer := make(chan string, 1)
	ci.mu.Lock()
	ci.answer = answer
	close(ci.wake)
	ci.wake = make(chan struct{})
	ci.mu.Unlock()

	select {
	case line := <-answer:
		return line, true
	case <-ci.eof:
	case <-ci.closed:
	}
	ci.mu.Lock()
	if ci.answer == answer {
		ci.answer = nil
	}
	ci.mu.Unlock()
	select {
	case line := <-answer:
		return line, true
	default:
		return "", false
	}
}

func (ci *consoleInput) waiting() bool {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	return ci.answer != nil
}
