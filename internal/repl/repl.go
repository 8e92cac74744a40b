package repl

import (
	log "FolioDb/internal/logger"
	"FolioDb/internal/store"
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

var errColor = color.New(color.FgRed)

// Repl runs the interactive loop against st until EOF or "exit".
func Repl(st *store.Store) {
	logger := log.Get("repl")
	logger.Info("Starting REPL session")

	fmt.Println("Welcome to FolioDB")
	fmt.Println("Enter commands, 'help' for a list, or 'exit' to quit")

	executor := NewExecutor(st)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		input := scanner.Text()

		if strings.ToLower(strings.TrimSpace(input)) == "exit" {
			logger.Info("User requested exit")
			break
		}

		if strings.TrimSpace(input) == "" {
			continue
		}

		logger.Debug("Processing command: %s", input)

		result, err := executor.Execute(input)
		if err != nil {
			logger.Error("Command execution failed: %v", err)
			fmt.Println(errColor.Sprintf("Error: %v", err))
			continue
		}

		fmt.Println(result)
	}

	if err := scanner.Err(); err != nil {
		logger.Error("Error reading input: %v", err)
		fmt.Println(errColor.Sprintf("Error reading input: %v", err))
	}

	logger.Info("REPL session ended")
}
