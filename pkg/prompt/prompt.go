// Package prompt provides confirmation callbacks for the injector.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dippynark/nsinject/pkg/inject"
	"github.com/pkg/errors"
)

// Console asks questions on out and reads answers from in. An empty answer
// means yes; only "n" or "no" decline.
func Console(in io.Reader, out io.Writer) inject.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(question string) (bool, error) {
		fmt.Fprintf(out, "%s? (Y/n) ", question)

		answer, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || answer == "") {
			return false, errors.Wrap(err, "failed to read answer")
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "n", "no":
			return false, nil
		}
		return true, nil
	}
}

// AlwaysYes approves every question without asking.
func AlwaysYes(string) (bool, error) {
	return true, nil
}

var _ inject.ConfirmFunc = AlwaysYes
