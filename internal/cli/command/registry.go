package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

var submissionFields = []Field{
	{Name: "language", Aliases: []string{"lang", "language_id"}, Prompt: "language", Type: FieldLanguage, Required: true},
	{Name: "code", Aliases: []string{"source_code"}, FileAlias: "file", Prompt: "code", Type: FieldString, Required: true},
	{Name: "input", Aliases: []string{"stdin"}, FileAlias: "input_file", Prompt: "input", Type: FieldString},
	{Name: "problem_id", Aliases: []string{"problem", "problemid"}, Prompt: "problem_id", Type: FieldInt64},
}

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "judge",
			Action:       "execute",
			Method:       "POST",
			PathTemplate: "/execute",
			Fields:       submissionFields,
			Summary:      "run code and wait for the verdict",
		},
		{
			Service:      "run",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/judge/runs",
			Fields:       submissionFields,
			Summary:      "queue a free run and print its token",
		},
		{
			Service:      "run",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/judge/runs/:token",
			Fields: []Field{
				{Name: "token", Prompt: "token", Type: FieldString, Required: true},
			},
			Summary: "show the status of a queued run",
		},
		{
			Service:      "verdict",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/judge/verdicts/:id",
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldString, Required: true},
			},
			Summary: "show a stored verdict",
		},
		{
			Service:      "system",
			Action:       "health",
			Method:       "GET",
			PathTemplate: "/healthz",
			Summary:      "show service health and queue load",
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Keys lists registry keys in sorted order.
func Keys(commands map[string]Command) []string {
	keys := make([]string, 0, len(commands))
	for key := range commands {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	if err := params.Canonicalize(cmd.Fields); err != nil {
		return RequestSpec{}, err
	}
	for _, field := range cmd.Fields {
		if field.Required && params.Get(field.Name) == "" {
			return RequestSpec{}, fmt.Errorf("missing parameter: %s", field.Name)
		}
	}
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		body, err = json.Marshal(payload)
		if err != nil {
			return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	for _, key := range []string{"id", "token"} {
		placeholder := ":" + key
		if strings.Contains(path, placeholder) {
			value := params.Get(key)
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", key)
			}
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
		}
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, len(cmd.Fields))
	for _, field := range cmd.Fields {
		raw := params.Get(field.Name)
		if raw == "" {
			continue
		}
		key := field.Name
		if key == "problem_id" {
			key = "problemId"
		}
		switch field.Type {
		case FieldInt64:
			n, err := ParseInt64(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
			}
			payload[key] = n
		case FieldLanguage:
			if id, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				payload[key] = id
			} else {
				payload[key] = strings.TrimSpace(raw)
			}
		default:
			payload[key] = raw
		}
	}
	return payload, nil
}
