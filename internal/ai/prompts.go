package ai

import "fmt"

// DefaultSystemPrompt is the system instruction applied to resume analysis
// requests when no override is configured.
const DefaultSystemPrompt = `You are an expert in ATS (Applicant Tracking Systems) and resume analysis with a strict commitment to honest, evidence-based assessment. Your core principles are:

- Base every score and tip on what is actually present in the resume
- Be thorough and detailed; do not soften low scores to be polite
- Point out concrete, actionable improvements
- Take the target job into account whenever one is provided`

// ImageToTextPrompt asks the model to transcribe an image verbatim.
const ImageToTextPrompt = `Extract all text visible in this image. Return only the extracted text, preserving the reading order. Do not add commentary.`

// FeedbackInstruction builds the user instruction for a resume analysis
// request from the target job title and description. Either may be empty.
func FeedbackInstruction(jobTitle, jobDescription string) string {
	return fmt.Sprintf(`Analyze and rate this resume and suggest how to improve it.
The rating can be low if the resume is bad.
Be thorough and detailed. Don't be afraid to point out any mistakes or areas for improvement.
If there is a lot to improve, don't hesitate to give low scores. This is to help the user improve their resume.
If available, use the job description for the job the user is applying to to give more detailed feedback.
If provided, take the job description into consideration.
The job title is: %s
The job description is: %s
Provide the feedback using the requested structured format.`, jobTitle, jobDescription)
}
