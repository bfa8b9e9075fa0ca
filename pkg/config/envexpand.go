package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes {{.VAR_NAME}} references in raw YAML with values from
// the process environment. Shell-style $VAR and ${VAR} are left untouched so
// masking regexes and log query expressions containing '$' survive.
//
// Unset variables become the empty string. Content that is not a valid
// template is returned as-is and left for the YAML parser to reject.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("sherlog").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if ok && key != "" {
			env[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
