// Package prompt renders the fixed question-answering prompt sent to
// the language model.
package prompt

import "strings"

// Apology is returned verbatim when retrieval finds no matching cards.
// The model is never invoked in that case.
const Apology = "I'm sorry, I couldn't find any card pricing information matching your question. " +
	"Please try rephrasing, or ask about a specific card, set, or condition."

// Render substitutes the question, retrieved context, and prior
// transcript into the answer template. Pure string assembly, no
// randomness and no side effects.
//
// The template instructs the model to answer only from the provided
// context and to say so explicitly when the context does not contain
// the answer. That instruction is load-bearing: it defines the
// expected behavior when retrieval surfaces weak evidence.
func Render(question, contextText, historyText string) string {
	var b strings.Builder
	b.WriteString("You are a knowledgeable assistant for Pokémon trading card prices. ")
	b.WriteString("Answer the question using only the card records provided below.\n\n")

	b.WriteString("Prior conversation:\n")
	if historyText == "" {
		b.WriteString("(none)")
	} else {
		b.WriteString(historyText)
	}
	b.WriteString("\n\n")

	b.WriteString("Card records:\n")
	b.WriteString(contextText)
	b.WriteString("\n\n")

	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\n")

	b.WriteString("Answer from the card records above. ")
	b.WriteString("If the records do not contain the answer, say explicitly that you don't know ")
	b.WriteString("rather than guessing.\n\nAnswer:")
	return b.String()
}
