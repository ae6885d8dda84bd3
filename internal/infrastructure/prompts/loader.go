package prompts

import (
	_ "embed"
)

//go:embed cardano.txt
var CardanoPrompt string

//go:embed legal.txt
var LegalPrompt string
