package port

import "context"

// Generator produces text completions from a prompt. Its output is hostile
// input as far as the rest of the system is concerned: everything it returns
// goes through the extractor and the validator before touching the database.
type Generator interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}
