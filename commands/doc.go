// Package commands loads named command templates from a directory.
//
// A command is a markdown file named <command>.md with optional YAML
// frontmatter carrying a description. The body is the instruction text
// handed to the agent engine; the loader treats it as opaque.
package commands
