// Package quiz parses plain-text quiz documents into structured questions.
//
// The format is line oriented:
//
//	Q: What is 2+2?
//	A: 3
//	B: 4
//	ANS: B
//	EXPLANATION: Basic arithmetic
//
// Unknown lines are ignored, as are option, answer and explanation lines that
// appear before the first question.
package quiz

import (
	"bufio"
	"io"
	"strings"

	"github.com/tgfiles/tgfiles/internal/core"
)

type state int

const (
	noActiveQuestion state = iota
	buildingQuestion
)

type action func(p *parser, remainder string)

type transition struct {
	prefix string
	// fold matches the prefix case-insensitively.
	fold bool
	// needsQuestion ignores the line unless a question is being built.
	needsQuestion bool
	apply         action
}

// transitions is evaluated in order; the first matching prefix wins.
var transitions = []transition{
	{prefix: "Q:", apply: startQuestion},
	{prefix: "A:", needsQuestion: true, apply: addOption("A")},
	{prefix: "B:", needsQuestion: true, apply: addOption("B")},
	{prefix: "C:", needsQuestion: true, apply: addOption("C")},
	{prefix: "D:", needsQuestion: true, apply: addOption("D")},
	{prefix: "ANS:", fold: true, needsQuestion: true, apply: setAnswer},
	{prefix: "EXPLANATION:", fold: true, needsQuestion: true, apply: setExplanation},
	{prefix: "DESCRIPTION:", fold: true, needsQuestion: true, apply: setExplanation},
}

type parser struct {
	state     state
	current   *core.QuizQuestion
	questions []core.QuizQuestion
}

// Parse converts quiz text into questions in source order. It never fails;
// empty input yields an empty slice.
func Parse(text string) []core.QuizQuestion {
	p := newParser()
	for _, line := range strings.Split(text, "\n") {
		p.line(line)
	}
	return p.finish()
}

// ParseReader is Parse over a stream. Only read errors are returned.
func ParseReader(r io.Reader) ([]core.QuizQuestion, error) {
	p := newParser()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p.finish(), nil
}

func newParser() *parser {
	return &parser{state: noActiveQuestion, questions: []core.QuizQuestion{}}
}

func (p *parser) line(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}

	for _, t := range transitions {
		remainder, ok := cutPrefix(line, t.prefix, t.fold)
		if !ok {
			continue
		}
		if t.needsQuestion && p.state != buildingQuestion {
			return
		}
		t.apply(p, strings.TrimSpace(remainder))
		return
	}
}

func (p *parser) flush() {
	if p.current == nil {
		return
	}
	p.questions = append(p.questions, *p.current)
	p.current = nil
}

func (p *parser) finish() []core.QuizQuestion {
	p.flush()
	p.state = noActiveQuestion
	return p.questions
}

func startQuestion(p *parser, text string) {
	p.flush()
	p.current = &core.QuizQuestion{
		ID:      len(p.questions) + 1,
		Text:    text,
		Options: []core.QuizOption{},
	}
	p.state = buildingQuestion
}

func addOption(letter string) action {
	return func(p *parser, text string) {
		p.current.Options = append(p.current.Options, core.QuizOption{Letter: letter, Text: text})
	}
}

func setAnswer(p *parser, text string) {
	p.current.Answer = strings.ToUpper(text)
}

func setExplanation(p *parser, text string) {
	p.current.Explanation = text
}

func cutPrefix(line, prefix string, fold bool) (string, bool) {
	if len(line) < len(prefix) {
		return "", false
	}
	head := line[:len(prefix)]
	if fold {
		if !strings.EqualFold(head, prefix) {
			return "", false
		}
	} else if head != prefix {
		return "", false
	}
	return line[len(prefix):], true
}
