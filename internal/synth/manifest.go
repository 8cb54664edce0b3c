package synth

import (
	"sort"
	"strings"
)

// frameworkFloor is the minimum runtime set every synthesized Flask
// function ships with, regardless of what the application declares.
var frameworkFloor = map[string]string{
	"Flask":        "Flask==2.3.3",
	"Werkzeug":     "Werkzeug==2.3.7",
	"Jinja2":       "Jinja2==3.1.2",
	"MarkupSafe":   "MarkupSafe==2.1.3",
	"itsdangerous": "itsdangerous==2.1.2",
	"click":        "click==8.1.7",
}

// importPins maps top-level import names to pinned packages. Imports
// without an entry are assumed to be stdlib or vendored locally.
var importPins = map[string]string{
	"psycopg2":   "psycopg2-binary==2.9.9",
	"requests":   "requests==2.31.0",
	"numpy":      "numpy==1.26.2",
	"pandas":     "pandas==2.1.3",
	"sqlalchemy": "SQLAlchemy==2.0.23",
	"pymongo":    "pymongo==4.6.1",
	"redis":      "redis==5.0.1",
	"boto3":      "boto3==1.33.2",
	"dotenv":     "python-dotenv==1.0.0",
	"yaml":       "PyYAML==6.0.1",
	"jwt":        "PyJWT==2.8.0",
	"bcrypt":     "bcrypt==4.1.1",
	"celery":     "celery==5.3.6",
	"pika":       "pika==1.3.2",
	"httpx":      "httpx==0.25.2",
}

// BuildManifest merges the framework floor, pins for the imports the
// function actually uses, and pass-through of application-declared
// requirement lines not already covered. Output is sorted
// case-insensitively, one requirement per line.
func BuildManifest(imports []string, appRequirements []string) string {
	pinned := make(map[string]string, len(frameworkFloor))
	for name, pin := range frameworkFloor {
		pinned[strings.ToLower(name)] = pin
	}

	for _, imp := range imports {
		module := topLevelModule(imp)
		if pin, ok := importPins[module]; ok {
			pinned[strings.ToLower(packageName(pin))] = pin
		}
	}

	for _, line := range appRequirements {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name := strings.ToLower(packageName(line))
		if _, covered := pinned[name]; covered {
			continue
		}
		pinned[name] = line
	}

	lines := make([]string, 0, len(pinned))
	for _, pin := range pinned {
		lines = append(lines, pin)
	}
	sort.Slice(lines, func(i, j int) bool {
		return strings.ToLower(lines[i]) < strings.ToLower(lines[j])
	})

	return strings.Join(lines, "\n") + "\n"
}

// topLevelModule extracts the imported module root from an import line:
// "from flask import Flask" -> "flask", "import psycopg2.extras" -> "psycopg2".
func topLevelModule(importLine string) string {
	fields := strings.Fields(importLine)
	if len(fields) < 2 {
		return ""
	}
	module := fields[1]
	if dot := strings.IndexByte(module, '.'); dot >= 0 {
		module = module[:dot]
	}
	return strings.ToLower(module)
}

// packageName strips version specifiers from a requirement line.
func packageName(requirement string) string {
	for _, sep := range []string{"==", ">=", "<=", "~=", ">", "<", "["} {
		if idx := strings.Index(requirement, sep); idx >= 0 {
			requirement = requirement[:idx]
		}
	}
	return strings.TrimSpace(requirement)
}
