package analysis

import (
	"fmt"

	"github.com/MrWong99/privanote/pkg/provider/llm"
)

const systemPrompt = `You are an expert meeting analyst. Analyze the provided meeting transcript and extract key information in a structured format. Focus on being accurate and concise.

Your analysis should include:
1. A clear, concise summary of the meeting
2. Specific action items with clear ownership when mentioned
3. Key decisions that were made
4. Main topics discussed
5. Identified participants (if names are mentioned)
6. Next steps or follow-up items

Only include information that is clearly stated or strongly implied in the transcript. If something is unclear, do not make assumptions.`

const userPromptTemplate = `Analyze this meeting transcript:

TRANSCRIPT:
%s

Respond with a single JSON object and nothing else. It must contain:
- summary: a concise 2-3 sentence summary of the meeting
- action_items: array of specific action items (what needs to be done)
- key_decisions: array of important decisions that were made
- topics_discussed: array of main topics discussed
- participants: array of participant names mentioned in the transcript
- next_steps: array of follow-up actions or next meeting items
- confidence: a number between 0 and 1 indicating your confidence in the analysis`

const summaryPromptTemplate = `Summarize this meeting transcript in %d words or less. Focus on the main points, decisions and outcomes:

%s`

// Generation limits shared by every backend.
const (
	maxAnalysisTokens = 1500
	maxSummaryTokens  = 300

	cloudTemperature = 0.3
	localTemperature = 0.2
)

// analysisRequest builds the chat request for a full analysis. The transcript
// is embedded verbatim.
func analysisRequest(transcript string, cloud bool) llm.CompletionRequest {
	temp := localTemperature
	if cloud {
		temp = cloudTemperature
	}
	return llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(userPromptTemplate, transcript)},
		},
		Temperature: temp,
		MaxTokens:   maxAnalysisTokens,
		JSONMode:    cloud,
	}
}

func summaryRequest(transcript string, maxWords int) llm.CompletionRequest {
	return llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(summaryPromptTemplate, maxWords, transcript)},
		},
		Temperature: cloudTemperature,
		MaxTokens:   maxSummaryTokens,
	}
}
