package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ConversationTurn is one utterance of the assessment dialogue.
type ConversationTurn struct {
	Speaker string `json:"sender"`
	Text    string `json:"text"`
}

// Report is the structured result of report generation.
type Report struct {
	PatientReport       string `json:"patientReport"`
	UnderwritingReport  string `json:"underwritingReport"`
	RiskAssessmentScore int    `json:"riskAssessmentScore"`
}

const reportInstructions = `You are an AI medical examiner tasked with generating comprehensive reports based on the conversation history between the AI and the user.

Your task is to create two reports and a risk assessment score:

1. Patient Report:
- Include the patient's profile information such as height, weight, BMI, smoking status, and exercise frequency.
- Summarize the key findings from the conversation, highlighting any health concerns or recommendations made during the assessment.
- Provide lifestyle recommendations based on the conversation.
- Include suggested follow-up actions.
- Ensure the report is HIPAA compliant.

2. Underwriting Report:
- Summarize the risk assessment based on the conversation.
- Highlight key medical findings relevant to underwriting.
- Discuss lifestyle risk factors identified during the assessment.
- Include any insurance implications based on the patient's profile and conversation.
- Provide a risk classification recommendation.
- Ensure the report is HIPAA compliant.

3. Risk Assessment Score:
- Provide a risk assessment score based on the medical examination results, out of 100 (high being good, low being bad).

Maintain a professional tone throughout the reports, and ensure that all information complies with HIPAA regulations.

The output must be a JSON object containing three keys: "patientReport", "underwritingReport", and "riskAssessmentScore", each containing the respective content.`

// GenerateReport posts the assessment conversation and parses the model's
// JSON reply into a Report. Model replies wrapped in markdown code fences
// are unwrapped before parsing.
func (c *Client) GenerateReport(ctx context.Context, conversation []ConversationTurn) (*Report, error) {
	if len(conversation) == 0 {
		return nil, fmt.Errorf("%w: empty conversation", ErrPermanent)
	}
	convo, err := json.Marshal(conversation)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal conversation: %v", ErrPermanent, err)
	}
	resp, err := c.CreateChatCompletion(ctx, ChatRequest{
		Messages: []Message{
			{Role: "system", Content: reportInstructions},
			{Role: "user", Content: string(convo)},
		},
	})
	if err != nil {
		return nil, err
	}

	cleaned := strings.ReplaceAll(resp.Content, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var report Report
	if err := json.Unmarshal([]byte(cleaned), &report); err != nil {
		return nil, fmt.Errorf("%w: parse report JSON: %v", ErrTransient, err)
	}
	if report.PatientReport == "" || report.UnderwritingReport == "" {
		return nil, fmt.Errorf("%w: report reply incomplete", ErrTransient)
	}
	return &report, nil
}
