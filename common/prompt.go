package common

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompter asks the operator a question and returns the answer.
type Prompter interface {
	// Prompt shows message and reads one line. An empty answer returns def.
	Prompt(message, def string) (string, error)
}

// StdinPrompter reads answers line by line from an input stream.
type StdinPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewStdinPrompter creates a prompter reading from in and writing questions to out.
func NewStdinPrompter(in io.Reader, out io.Writer) *StdinPrompter {
	return &StdinPrompter{in: bufio.NewReader(in), out: out}
}

func (p *StdinPrompter) Prompt(message, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s] ", message, def)
	} else {
		fmt.Fprintf(p.out, "%s ", message)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// Confirm keeps asking until the answer is Y or N (any case) and reports
// whether it was Y.
func Confirm(p Prompter, message string) (bool, error) {
	for {
		answer, err := p.Prompt(message+" (Y/N)", "")
		if err != nil {
			return false, err
		}
		switch strings.ToUpper(strings.TrimSpace(answer)) {
		case "Y":
			return true, nil
		case "N":
			return false, nil
		}
	}
}

// MockPrompter replays scripted answers and records the questions asked.
type MockPrompter struct {
	mu       sync.Mutex
	Answers  []string
	Messages []string
}

// NewMockPrompter creates a mock returning answers in order.
func NewMockPrompter(answers ...string) *MockPrompter {
	return &MockPrompter{Answers: answers}
}

func (m *MockPrompter) Prompt(message, def string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, message)
	if len(m.Answers) == 0 {
		return "", io.EOF
	}
	answer := m.Answers[0]
	m.Answers = m.Answers[1:]
	if answer == "" {
		return def, nil
	}
	return answer, nil
}
