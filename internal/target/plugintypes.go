// Package target maps Moodle plugin types to the directories their plugins
// install into, relative to the Moodle root.
package target

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/filesystem"
)

// builtinTypes are the plugin type directories of a standard Moodle
// distribution.
var builtinTypes = map[string]string{
	"antivirus":          "lib/antivirus",
	"assignfeedback":     "mod/assign/feedback",
	"assignsubmission":   "mod/assign/submission",
	"atto":               "lib/editor/atto/plugins",
	"auth":               "auth",
	"availability":       "availability/condition",
	"block":              "blocks",
	"booktool":           "mod/book/tool",
	"cachelock":          "cache/locks",
	"cachestore":         "cache/stores",
	"calendartype":       "calendar/type",
	"contenttype":        "contentbank/contenttype",
	"coursereport":       "course/report",
	"customfield":        "customfield/field",
	"datafield":          "mod/data/field",
	"dataformat":         "dataformat",
	"datapreset":         "mod/data/preset",
	"editor":             "lib/editor",
	"enrol":              "enrol",
	"fileconverter":      "files/converter",
	"filter":             "filter",
	"format":             "course/format",
	"gradeexport":        "grade/export",
	"gradeimport":        "grade/import",
	"gradereport":        "grade/report",
	"gradingform":        "grade/grading/form",
	"h5plib":             "h5p/h5plib",
	"local":              "local",
	"logstore":           "admin/tool/log/store",
	"ltiservice":         "mod/lti/service",
	"ltisource":          "mod/lti/source",
	"media":              "media/player",
	"message":            "message/output",
	"mlbackend":          "lib/mlbackend",
	"mod":                "mod",
	"paygw":              "payment/gateway",
	"plagiarism":         "plagiarism",
	"portfolio":          "portfolio",
	"profilefield":       "user/profile/field",
	"qbank":              "question/bank",
	"qbehaviour":         "question/behaviour",
	"qformat":            "question/format",
	"qtype":              "question/type",
	"quiz":               "mod/quiz/report",
	"quizaccess":         "mod/quiz/accessrule",
	"report":             "report",
	"repository":         "repository",
	"scormreport":        "mod/scorm/report",
	"search":             "search/engine",
	"theme":              "theme",
	"tinymce":            "lib/editor/tinymce/plugins",
	"tool":               "admin/tool",
	"webservice":         "webservice",
	"workshopallocation": "mod/workshop/allocation",
	"workshopeval":       "mod/workshop/eval",
	"workshopform":       "mod/workshop/form",
}

// PluginTypes resolves plugin types to install directories.
type PluginTypes struct {
	dirs map[string]string
}

// NewPluginTypes creates a map with the built-in types and optional
// manifest overrides, which win over built-ins.
func NewPluginTypes(overrides map[string]string) *PluginTypes {
	dirs := make(map[string]string, len(builtinTypes)+len(overrides))
	for t, dir := range builtinTypes {
		dirs[t] = dir
	}
	for t, dir := range overrides {
		dirs[t] = dir
	}
	return &PluginTypes{dirs: dirs}
}

// Dir returns the directory for a plugin type, relative to the Moodle root.
func (p *PluginTypes) Dir(pluginType string) (string, error) {
	dir, ok := p.dirs[pluginType]
	if !ok {
		return "", fmt.Errorf("unknown plugin type '%s', declare it in pluginTypes: {\"%s\": \"path/to/dir\"}", pluginType, pluginType)
	}
	return filepath.FromSlash(dir), nil
}

// InstallPath returns where a component installs under moodleDir. The
// result is guaranteed to stay inside moodleDir, which must exist.
func (p *PluginTypes) InstallPath(moodleDir, componentName string) (string, error) {
	pluginType, pluginName := component.SplitName(componentName)
	if pluginType == "" || pluginName == "" {
		return "", fmt.Errorf("component '%s' is not of the form 'type_pluginname'", componentName)
	}
	dir, err := p.Dir(pluginType)
	if err != nil {
		return "", err
	}
	path, err := filesystem.ValidatePath(moodleDir, filepath.Join(dir, pluginName))
	if err != nil {
		return "", fmt.Errorf("component '%s': %w", componentName, err)
	}
	return path, nil
}

// Types returns all known plugin types, sorted.
func (p *PluginTypes) Types() []string {
	names := make([]string, 0, len(p.dirs))
	for name := range p.dirs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsOverride returns whether a type's directory came from the manifest.
func (p *PluginTypes) IsOverride(pluginType string) bool {
	builtin, isBuiltin := builtinTypes[pluginType]
	dir, isDefined := p.dirs[pluginType]
	return isDefined && (!isBuiltin || builtin != dir)
}
