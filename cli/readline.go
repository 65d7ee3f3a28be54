package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadLine prompts input from the user delimited by a new line
func ReadLine() string {
	var all string
	var line []byte
	var err error

	hasMoreInLine := true
	bio := bufio.NewReader(os.Stdin)

	for hasMoreInLine {
		line, hasMoreInLine, err = bio.ReadLine()
		if err != nil {
			fmt.Println("Error: cannot read from stdin", err)
			OSExit(1)
			return ""
		}
		all += string(line)
	}

	return strings.Replace(all, "\n", "", -1)
}

// AskConfirm displays a message and returns true if the answer is y or yes
func AskConfirm(s string) bool {
	fmt.Printf("%s (y/N): ", s)
	answer := strings.ToLower(strings.TrimSpace(ReadLine()))
	return answer == "y" || answer == "yes"
}
