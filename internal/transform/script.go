// Package transform expands the variables component build scripts may use.
package transform

import (
	"bytes"
	"fmt"
	"text/template"
)

// Variables available to build scripts.
const (
	VarComponentName = "ComponentName"
	VarComponentDir  = "ComponentDir"
	VarMoodleDir     = "MoodleDir"
)

// BuildVars returns the variables for one component's build script.
func BuildVars(componentName, componentDir, moodleDir string) map[string]string {
	return map[string]string{
		VarComponentName: componentName,
		VarComponentDir:  componentDir,
		VarMoodleDir:     moodleDir,
	}
}

// Expand applies text/template substitution to a script, e.g.
// "make -C {{ .ComponentDir }}". Unknown variables are an error.
func Expand(script string, vars map[string]string) (string, error) {
	tmpl, err := template.New("script").Option("missingkey=error").Parse(script)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}
