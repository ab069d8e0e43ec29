package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aitelegrambot/internal/ollama"
	"aitelegrambot/internal/stream"
)

// Fixed reply texts.
const (
	NotAdminText    = "You are not an Admin!"
	NoModelsText    = "We don't have any models!\nTry pulling them."
	ModelLibraryURL = "https://ollama.com/library/"

	HelpMessage = `*Normal commands*:
- /start
- /infer <query>
- /help
*Administration commands*:
- /list\_models
- /change\_model <model\_name>
- /pull\_model <model\_name>
- /remove\_model <model\_name>`

	MistakenClickMessage = "You have made a mistake by clicking on the /infer command directly " +
		"without providing an input, to do this properly please provide a prompt along with the command."
)

// WelcomeMessage is the /start reply.
func WelcomeMessage(version string) string {
	return fmt.Sprintf("Hello! I am running aitelegrambot %s.\n\nTo inference something please run, /infer.", version)
}

func usageMessage(cmd string) string {
	escaped := strings.ReplaceAll(cmd, "_", `\_`)
	return fmt.Sprintf("Please provide a model name: /%s <model\\_name>", escaped)
}

func changingText(model string) string { return fmt.Sprintf("Alright! changing to *%s*.", model) }
func pullingText(model string) string  { return fmt.Sprintf("Pulling %s!", model) }
func pulledText(model string) string   { return fmt.Sprintf("Done pulling %s!", model) }
func deletingText(model string) string { return fmt.Sprintf("Deleting %s!", model) }
func deletedText(model string) string  { return fmt.Sprintf("Done deleting %s!", model) }

// FormatModelList renders one line per model, marking the active one.
func FormatModelList(names []string, active string) string {
	if len(names) == 0 {
		return NoModelsText
	}
	lines := make([]string, 0, len(names))
	for _, n := range names {
		line := fmt.Sprintf("- [%s](%s%s) `/change_model %s`", n, ModelLibraryURL, n, n)
		if n == active {
			line += " (active)"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// describeError converts a handler error into the text shown to the user.
func describeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return stream.TimeoutNote
	case errors.Is(err, context.Canceled):
		return stream.CancelledNote
	case ollama.IsBackendUnavailable(err):
		return "⚠️ The inference backend is unreachable, please try again later."
	case ollama.IsInvalidModel(err):
		return "⚠️ The selected model is not available. An admin can /pull\\_model it or /change\\_model."
	case ollama.IsModelNotFound(err):
		return "⚠️ No such model."
	case ollama.IsStreamInterrupted(err):
		return "⚠️ The response was interrupted."
	default:
		return "⚠️ Something went wrong: " + err.Error()
	}
}
