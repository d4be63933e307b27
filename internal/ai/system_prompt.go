package ai

const enhanceInstructions = `You are a productivity assistant. Your task is to enhance a user's task description to make it more detailed, actionable, and clear. The user will provide a title and an optional existing description.
IMPORTANT: You must respond with only a valid JSON object and nothing else. The JSON object must have a single key: "enhanced_description". Do not include any other text, markdown formatting, or code blocks. For example: {"enhanced_description": "A detailed new description."}`

const suggestInstructions = `You are an intelligent task scheduling assistant. Your goal is to suggest a category, priority, and deadline for a new task based on the user's current workload and recent context.

Analyze the following information:
1. The new task's title and description.
2. The user's list of existing tasks.
3. The user's recent context entries (from notes, emails, etc.).
4. A list of available categories.

Based on your analysis, provide the most logical suggestions. The deadline should be in YYYY-MM-DD format.

IMPORTANT: You must respond with only a valid JSON object and nothing else. The JSON object must have three keys: "category", "priority", and "deadline".
Example: {"category": "Work", "priority": "High", "deadline": "2025-07-12"}`

// promptSeparator sits between instructions and user data. Everything goes
// in a single user message; local models often ignore system roles.
const promptSeparator = "\n\n---\n\n"

// SuggestionCategories is the fixed list offered to the model.
var SuggestionCategories = []string{
	"Work",
	"Personal",
	"Development",
	"Management",
	"Health",
	"Learning",
	"Finance",
	"Home",
}
