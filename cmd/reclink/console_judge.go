package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"reclink/internal/labeler"
	"reclink/internal/linkage"
)

const missingValue = "(missing)"

// consoleJudge asks the operator about each pair on the terminal.
type consoleJudge struct {
	in       *bufio.Reader
	out      io.Writer
	colorize bool
}

func newConsoleJudge(in io.Reader, out io.Writer) *consoleJudge {
	return &consoleJudge{
		in:       bufio.NewReader(in),
		out:      out,
		colorize: shouldColorize(out),
	}
}

type lineResult struct {
	line string
	err  error
}

func (j *consoleJudge) Judge(ctx context.Context, prompt labeler.Prompt) (linkage.Judgment, error) {
	fmt.Fprintln(j.out, renderPairTable(prompt))
	fmt.Fprintln(j.out, renderStatusLine("Progress", statusInfo, progressText(prompt), j.colorize))
	for {
		fmt.Fprint(j.out, "Do these records refer to the same entity? (y)es / (n)o / (u)nsure / (f)inished: ")
		line, err := j.readLine(ctx)
		if err != nil {
			fmt.Fprintln(j.out)
			return "", err
		}
		if judgment, ok := parseAnswer(line); ok {
			return judgment, nil
		}
		fmt.Fprintln(j.out, renderStatusLine("Answer", statusWarn, fmt.Sprintf("%q not understood; answer y, n, u, or f", strings.TrimSpace(line)), j.colorize))
	}
}

// readLine returns the next input line, or ctx's error once it is done.
func (j *consoleJudge) readLine(ctx context.Context) (string, error) {
	ch := make(chan lineResult, 1)
	go func() {
		line, err := j.in.ReadString('\n')
		ch <- lineResult{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, io.EOF) && strings.TrimSpace(res.line) != "" {
				return res.line, nil
			}
			return "", fmt.Errorf("read answer: %w", res.err)
		}
		return res.line, nil
	}
}

func parseAnswer(line string) (linkage.Judgment, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return linkage.JudgmentMatch, true
	case "n", "no":
		return linkage.JudgmentDistinct, true
	case "u", "unsure", "s", "skip":
		return linkage.JudgmentSkip, true
	case "f", "finish", "finished":
		return linkage.JudgmentFinish, true
	default:
		return "", false
	}
}

func displayValue(record linkage.Record, field string) string {
	if value, ok := record.Get(field); ok {
		return value
	}
	return missingValue
}

func progressText(prompt labeler.Prompt) string {
	return fmt.Sprintf("%d labeled (%d match, %d distinct), %d skipped",
		prompt.Labeled, prompt.Matches, prompt.Distincts, prompt.Skipped)
}
