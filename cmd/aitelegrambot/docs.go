package main

// General API documentation for swaggo. Run `swag init -g cmd/aitelegrambot/docs.go -o internal/httpapi/docs` to regenerate.
//
// @title           aitelegrambot ops API
// @version         1.0
// @description     Operational endpoints of the Telegram to Ollama bot.
//
// @contact.name   aitelegrambot maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
