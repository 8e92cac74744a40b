package repl

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Verb is a REPL command word.
type Verb string

const (
	Get      Verb = "get"
	List     Verb = "list"
	Set      Verb = "set"
	Merge    Verb = "merge"
	Update   Verb = "update"
	Delete   Verb = "delete"
	Begin    Verb = "begin"
	Commit   Verb = "commit"
	Rollback Verb = "rollback"
	Help     Verb = "help"
)

// Command is one parsed REPL line.
type Command struct {
	Verb    Verb
	Path    string
	Payload map[string]any
}

// verbShape describes what each verb expects after the command word.
type verbShape struct {
	needsPath    bool
	needsPayload bool
}

var shapes = map[Verb]verbShape{
	Get:      {needsPath: true},
	List:     {needsPath: true},
	Set:      {needsPath: true, needsPayload: true},
	Merge:    {needsPath: true, needsPayload: true},
	Update:   {needsPath: true, needsPayload: true},
	Delete:   {needsPath: true},
	Begin:    {},
	Commit:   {},
	Rollback: {},
	Help:     {},
}

// Parse turns a REPL line into a Command. Lines look like
//
//	set users/alice {"name": "Alice"}
//	get users/alice
//	begin
//
// The payload, when present, is everything from the first '{' to the end
// of the line and must be a JSON object.
func Parse(line string) (*Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty command")
	}

	head := line
	var payloadText string
	if idx := strings.Index(line, "{"); idx >= 0 {
		head = strings.TrimSpace(line[:idx])
		payloadText = line[idx:]
	}

	fields := strings.Fields(head)
	if len(fields) == 0 {
		return nil, fmt.Errorf("missing command word, try 'help'")
	}
	verb := Verb(strings.ToLower(fields[0]))
	shape, ok := shapes[verb]
	if !ok {
		return nil, fmt.Errorf("unknown command %q, try 'help'", fields[0])
	}

	cmd := &Command{Verb: verb}

	switch {
	case shape.needsPath && len(fields) < 2:
		return nil, fmt.Errorf("%s needs a path", verb)
	case !shape.needsPath && len(fields) > 1:
		return nil, fmt.Errorf("%s takes no arguments", verb)
	case len(fields) > 2:
		return nil, fmt.Errorf("unexpected argument %q after path", fields[2])
	}
	if shape.needsPath {
		cmd.Path = fields[1]
	}

	if shape.needsPayload {
		if payloadText == "" {
			return nil, fmt.Errorf("%s %s needs a JSON object payload", verb, cmd.Path)
		}
		if err := json.Unmarshal([]byte(payloadText), &cmd.Payload); err != nil {
			return nil, fmt.Errorf("invalid payload: %v", err)
		}
	} else if payloadText != "" {
		return nil, fmt.Errorf("%s takes no payload", verb)
	}

	return cmd, nil
}
