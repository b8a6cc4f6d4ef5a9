// Package chat implements the four-stage grounded chat pipeline:
// query rewrite, retrieval, answer synthesis, and follow-up generation.
package chat

import (
	"github.com/hrygo/ragchat/plugin/ai"
)

// Prompt templates are immutable configuration data. They are never
// mutated per request.

const answerSystemPrompt = `Assistant helps students with general questions, and questions about academic advising. Be brief in your answers.
Answer ONLY with the facts listed in the list of sources below. If there isn't enough information below, say you don't know. Do not generate answers that don't use the sources below. If asking a clarifying question to the user would help, ask the question.
For tabular information return it as an html table. Do not return markdown format. If the question is not in English, answer in the language used in the question.
Each source has a name followed by colon and the actual information, always include the source name for each fact you use in the response. Use square brackets to reference the source, e.g. [info1.txt]. Don't combine sources, list each source separately, e.g. [info1.txt][info2.pdf].
Include the main topic of the current chat session in the respons.
Return results in JSON format with the answer and topic as separate elements, following this example
{ "topic": "conversation topic", "answer": "response to user question" }.
`

const queryPromptTemplate = `Below is a history of the conversation so far, and a new question asked by the user that needs to be answered by searching in a knowledge base about employee healthcare plans and the employee handbook.
Generate a search query based on the conversation and the new question.
Do not include cited source filenames and document names e.g info.txt or doc.pdf in the search query terms.
Do not include any text inside [] or <<>> in the search query terms.
Do not include any special characters like '+'.
If the question is not in English, translate the question to English before generating the search query.
If you cannot generate a search query, return just the number 0.
`

const followUpPromptTemplate = `Below is a history of the last 5 interactions in the conversation so far.
Generate a list of the most likely follow up questions of interest based on the most recent history.
Use double angle brackets to reference the questions, e.g. <<Are there exclusions for prescriptions?>>.
Try not to repeat questions that have already been asked.
Only generate questions and do not generate any text before or after the questions, such as 'Next Questions'
`

const followUpQuestionsPrompt = `Generate three very brief follow-up questions that the user would likely ask next.
Try not to repeat questions that have already been asked.
Only generate questions and do not generate any text before or after the questions, such as 'Next Questions'.
Return results in JSON format with questions in an array, following this example
[ "next question the user should ask" , "another question to ask" ] . `

// queryWrapPrefix wraps the latest question in the rewrite anchor message.
const queryWrapPrefix = "Generate search query for: "

// rewriteRefusalSentinel is what the rewrite prompt instructs the model
// to return when it cannot generate a query.
const rewriteRefusalSentinel = "0"

// queryPromptFewShots shows the rewriter what queries we want. Shared,
// read-only static data.
var queryPromptFewShots = []ai.Message{
	{Role: ai.RoleUser, Content: "What is academic advising?"},
	{Role: ai.RoleAssistant, Content: "Academic advising is a service provided by institutions of higher education to support students in their academic journey."},
	{Role: ai.RoleUser, Content: "What services are provided by an academic advisor?"},
	{Role: ai.RoleAssistant, Content: "degree planning, help with financial aid, career advice"},
}
