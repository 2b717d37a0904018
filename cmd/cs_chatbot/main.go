package main

import (
	// register the google and openai providers
	_ "cs_chatbot/pkg/ai/providers"
)

func main() {
	Execute()
}
