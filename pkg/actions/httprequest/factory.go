package httprequest

// Schema returns the JSON schema of the http payload.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"title":       "URL",
				"type":        "string",
				"description": "The URL to send the HTTP request to. Supports templating with account credentials.",
				"examples": []string{
					"https://api.example.com/users",
					"https://slack.com/api/chat.postMessage",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use (GET, POST, PUT, DELETE), case-insensitive",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include in the request.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
				"examples": []map[string]string{
					{
						"Content-Type":  "application/json",
						"Authorization": "Bearer {{ accounts.slack.access_token }}",
					},
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body content, sent as-is.",
				"examples": []string{
					`{"channel": "#general", "text": "Hello"}`,
				},
			},
		},
		"required": []string{"url", "method"},
	}
}
