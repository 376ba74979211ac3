// Package main: chat simulation.
//
// chatbot runs an interactive terminal session with the support bot answering investor questions. Type quit or exit
// to leave.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/tarancss/luxhedge/lib/chat"
)

const prompt = "you> "

func main() {
	if err := session(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session reads questions from in until EOF or quit and writes the replies of the bot to out.
func session(in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "LUXHEDGE support chat. Type quit to leave.")
	fmt.Fprintln(out, "bot> "+chat.Reply("hello"))
	fmt.Fprint(out, prompt)

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		switch q := chat.Normalize(sc.Text()); q {
		case "":
		case "quit", "exit", "bye":
			fmt.Fprintln(out, "bot> Goodbye!")

			return nil
		default:
			fmt.Fprintln(out, "bot> "+chat.Reply(q))
		}

		fmt.Fprint(out, prompt)
	}

	return sc.Err()
}
