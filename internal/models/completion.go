package models

// PromptRequest тело POST /api/gemini.
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// Completion ответ модели. Модель обязана вернуть ровно такой JSON объект.
type Completion struct {
	TextContent string `json:"text_content"`
}

// ErrorResponse стандартное тело ответа об ошибке.
type ErrorResponse struct {
	Error string `json:"error"`
}
